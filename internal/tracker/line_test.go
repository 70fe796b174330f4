package tracker

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) *LineTracker {
	t.Helper()
	lt, err := NewLineTracker(Config{
		MassNum:       4,
		StoppingPower: 100,
		StepSize:      0.001,
		ChamberLength: 1,
		ChamberRadius: 0.3,
	})
	require.NoError(t, err)
	return lt
}

func TestNewLineTrackerValidation(t *testing.T) {
	good := Config{MassNum: 1, StoppingPower: 1, StepSize: 1, ChamberLength: 1, ChamberRadius: 1}
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero_mass", func(c *Config) { c.MassNum = 0 }},
		{"negative_stopping_power", func(c *Config) { c.StoppingPower = -1 }},
		{"nan_step", func(c *Config) { c.StepSize = math.NaN() }},
		{"inf_length", func(c *Config) { c.ChamberLength = math.Inf(1) }},
		{"zero_radius", func(c *Config) { c.ChamberRadius = 0 }},
	}

	_, err := NewLineTracker(good)
	require.NoError(t, err)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := good
			tc.mutate(&cfg)
			_, err := NewLineTracker(cfg)
			assert.Error(t, err)
		})
	}
}

func TestTrackParticleStopsInGas(t *testing.T) {
	lt := newTestTracker(t)
	// 2 MeV/u × 4 nucleons at 100 MeV/m stops after about 8 cm.
	tr, err := lt.TrackParticle([]float64{0, 0, 0.1, 2, 0, 0})
	require.NoError(t, err)

	assert.InDelta(t, 80, tr.Len(), 1)
	require.NoError(t, tr.Validate())

	first := tr.Points[0]
	assert.Equal(t, 2.0, first.Energy)
	assert.Equal(t, 0.1, first.Z)
	assert.Zero(t, first.Time)

	for i := 1; i < tr.Len(); i++ {
		p, prev := tr.Points[i], tr.Points[i-1]
		assert.Less(t, p.Energy, prev.Energy)
		assert.Greater(t, p.Time, prev.Time)
		assert.InDelta(t, 0.001, p.Z-prev.Z, 1e-12)
		assert.Equal(t, 0.0, p.X)
		assert.Equal(t, 100.0, p.DeDx)
	}
	assert.Greater(t, tr.Points[tr.Len()-1].Energy, 0.0)
}

func TestTrackParticleDirection(t *testing.T) {
	lt := newTestTracker(t)
	azi, pol := math.Pi/4, math.Pi/3
	tr, err := lt.TrackParticle([]float64{0.01, -0.02, 0.5, 1, azi, pol})
	require.NoError(t, err)

	last := tr.Points[tr.Len()-1]
	dx, dy, dz := last.X-0.01, last.Y+0.02, last.Z-0.5
	r := math.Sqrt(dx*dx + dy*dy + dz*dz)
	require.Greater(t, r, 0.0)
	assert.InDelta(t, math.Sin(pol)*math.Cos(azi), dx/r, 1e-9)
	assert.InDelta(t, math.Sin(pol)*math.Sin(azi), dy/r, 1e-9)
	assert.InDelta(t, math.Cos(pol), dz/r, 1e-9)
	for _, p := range tr.Points {
		assert.Equal(t, azi, p.Azimuth)
		assert.Equal(t, pol, p.Polar)
	}
}

func TestTrackParticleLeavesChamber(t *testing.T) {
	lt := newTestTracker(t)
	tr, err := lt.TrackParticle([]float64{0, 0, 0.95, 2, 0, 0})
	require.NoError(t, err)

	for _, p := range tr.Points {
		assert.LessOrEqual(t, p.Z, 1.0)
	}
	assert.Less(t, tr.Len(), 80)
}

func TestTrackParticleErrors(t *testing.T) {
	lt := newTestTracker(t)
	testCases := []struct {
		name    string
		params  []float64
		wantErr error
	}{
		{"short_vector", []float64{0, 0, 0.1, 2, 0}, ErrInvalidParams},
		{"zero_energy", []float64{0, 0, 0.1, 0, 0, 0}, ErrInvalidParams},
		{"nan_angle", []float64{0, 0, 0.1, 2, math.NaN(), 0}, ErrInvalidParams},
		{"start_below_chamber", []float64{0, 0, -0.1, 2, 0, 0}, ErrInvalidParams},
		{"start_outside_radius", []float64{0.3, 0.3, 0.1, 2, 0, 0}, ErrInvalidParams},
		{"exits_immediately", []float64{0, 0, 0.9995, 2, 0, 0}, ErrDegenerateTrack},
		{"stops_immediately", []float64{0, 0, 0.1, 0.01, 0, 0}, ErrDegenerateTrack},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := lt.TrackParticle(tc.params)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}
