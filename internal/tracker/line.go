// Package tracker integrates particle trajectories through the active volume.
package tracker

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/mcopt/internal/physics"
	"github.com/banshee-data/mcopt/internal/track"
)

// NumParams is the length of the parameter vector accepted by LineTracker:
// (x0, y0, z0, enu0, azimuth, polar).
const NumParams = 6

var (
	// ErrInvalidParams is returned for a malformed or unphysical parameter vector.
	ErrInvalidParams = errors.New("invalid track parameters")
	// ErrDegenerateTrack is returned when integration yields fewer than two samples.
	ErrDegenerateTrack = errors.New("degenerate track")
)

// Config describes a field-free chamber.
type Config struct {
	MassNum       int
	StoppingPower float64 // total dE/dx, MeV/m
	StepSize      float64 // m
	ChamberLength float64 // active length along z, m
	ChamberRadius float64 // m
}

// Validate checks that every field is positive and finite.
func (c Config) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"mass_num", float64(c.MassNum)},
		{"stopping_power", c.StoppingPower},
		{"step_size", c.StepSize},
		{"chamber_length", c.ChamberLength},
		{"chamber_radius", c.ChamberRadius},
	} {
		if !(f.v > 0) || math.IsInf(f.v, 0) {
			return fmt.Errorf("tracker: %s must be positive and finite, got %v", f.name, f.v)
		}
	}
	return nil
}

// LineTracker moves a particle in a straight line at constant stopping power.
// It holds no mutable state and is safe for concurrent use.
type LineTracker struct {
	cfg Config
}

// NewLineTracker validates cfg and returns a LineTracker.
func NewLineTracker(cfg Config) (*LineTracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &LineTracker{cfg: cfg}, nil
}

// Config returns the tracker configuration.
func (lt *LineTracker) Config() Config {
	return lt.cfg
}

func (lt *LineTracker) inside(x, y, z float64) bool {
	return z >= 0 && z <= lt.cfg.ChamberLength && math.Hypot(x, y) <= lt.cfg.ChamberRadius
}

// TrackParticle integrates from (x0, y0, z0) with energy enu0 (MeV/u) along
// the direction given by azimuth and polar (rad). Integration stops when the
// particle stops or leaves the chamber; the exit sample is not kept.
func (lt *LineTracker) TrackParticle(params []float64) (track.Track, error) {
	if len(params) != NumParams {
		return track.Track{}, fmt.Errorf("%w: want %d values, got %d", ErrInvalidParams, NumParams, len(params))
	}
	for i, v := range params {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return track.Track{}, fmt.Errorf("%w: parameter %d is %v", ErrInvalidParams, i, v)
		}
	}
	x, y, z, enu, azi, pol := params[0], params[1], params[2], params[3], params[4], params[5]
	if enu <= 0 {
		return track.Track{}, fmt.Errorf("%w: initial energy %v MeV/u", ErrInvalidParams, enu)
	}
	if !lt.inside(x, y, z) {
		return track.Track{}, fmt.Errorf("%w: start (%g, %g, %g) outside chamber", ErrInvalidParams, x, y, z)
	}

	dx := math.Sin(pol) * math.Cos(azi)
	dy := math.Sin(pol) * math.Sin(azi)
	dz := math.Cos(pol)

	step := lt.cfg.StepSize
	lossPerStep := lt.cfg.StoppingPower * step / float64(lt.cfg.MassNum)
	dedx := lt.cfg.StoppingPower

	var tr track.Track
	var t float64
	for {
		tr.Append(track.Point{
			X: x, Y: y, Z: z,
			Time:    t,
			Energy:  enu,
			DeDx:    dedx,
			Azimuth: azi,
			Polar:   pol,
		})
		if enu <= lossPerStep {
			break
		}
		nx, ny, nz := x+step*dx, y+step*dy, z+step*dz
		if !lt.inside(nx, ny, nz) {
			break
		}
		t += step / physics.Speed(enu)
		x, y, z = nx, ny, nz
		enu -= lossPerStep
	}

	if tr.Len() < 2 {
		return track.Track{}, fmt.Errorf("%w: %d sample(s)", ErrDegenerateTrack, tr.Len())
	}
	return tr, nil
}
