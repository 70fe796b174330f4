package eventgen

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/mcopt/internal/calib"
	"github.com/banshee-data/mcopt/internal/padplane"
	"github.com/banshee-data/mcopt/internal/track"
)

// testConfig drifts at 5 cm/µs with a 12.5 MHz clock: 250 time buckets per
// metre of drift.
func testConfig() Config {
	return Config{
		DriftVelocity:   calib.Vec3{Z: -5},
		Clock:           12.5e6,
		Shape:           280e-9,
		MassNum:         1,
		Ionization:      25,
		MicromegasGain:  500,
		ElectronicsGain: 4e-12,
		Tilt:            0,
		DiffSigma:       0,
		Overflow:        OverflowDrop,
	}
}

func newTestGenerator(t testing.TB, mutate func(*Config)) *Generator {
	t.Helper()
	pads, err := padplane.NewCenteredGridPlane(40, 40, 0.005)
	require.NoError(t, err)
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	g, err := New(pads, cfg)
	require.NoError(t, err)
	return g
}

// axialTrack runs parallel to the drift axis at (x, y) from z0 to z1 with a
// linear energy loss.
func axialTrack(x, y, z0, z1 float64, n int) (*mat.Dense, []float64) {
	pos := mat.NewDense(n, 3, nil)
	en := make([]float64, n)
	for i := 0; i < n; i++ {
		f := float64(i) / float64(n-1)
		pos.Set(i, 0, x)
		pos.Set(i, 1, y)
		pos.Set(i, 2, z0+f*(z1-z0))
		en[i] = 2.0 - 0.5*f
	}
	return pos, en
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero_clock", func(c *Config) { c.Clock = 0 }},
		{"negative_shape", func(c *Config) { c.Shape = -1 }},
		{"zero_mass", func(c *Config) { c.MassNum = 0 }},
		{"nan_ionization", func(c *Config) { c.Ionization = math.NaN() }},
		{"inf_gain", func(c *Config) { c.MicromegasGain = math.Inf(1) }},
		{"zero_electronics_gain", func(c *Config) { c.ElectronicsGain = 0 }},
		{"nan_tilt", func(c *Config) { c.Tilt = math.NaN() }},
		{"negative_diffusion", func(c *Config) { c.DiffSigma = -0.1 }},
		{"zero_drift_z", func(c *Config) { c.DriftVelocity = calib.Vec3{X: 1} }},
		{"bad_policy", func(c *Config) { c.Overflow = OverflowPolicy(9) }},
	}

	require.NoError(t, testConfig().Validate())
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestNewRejectsNilPadPlane(t *testing.T) {
	_, err := New(nil, testConfig())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParseOverflowPolicy(t *testing.T) {
	p, err := ParseOverflowPolicy(" Error ")
	require.NoError(t, err)
	assert.Equal(t, OverflowError, p)
	assert.Equal(t, "error", p.String())

	p, err = ParseOverflowPolicy("drop")
	require.NoError(t, err)
	assert.Equal(t, OverflowDrop, p)

	_, err = ParseOverflowPolicy("wrap")
	assert.Error(t, err)
}

func TestNumElec(t *testing.T) {
	g := newTestGenerator(t, nil)

	got := g.NumElec([]float64{1.0, 0.5, 0.25, 0.25})
	assert.Equal(t, []float64{0, 20000, 10000, 0}, got)

	assert.Empty(t, g.NumElec(nil))
	assert.Equal(t, []float64{0}, g.NumElec([]float64{3}))
}

func TestNumElecScalesWithMassNumber(t *testing.T) {
	g := newTestGenerator(t, func(c *Config) { c.MassNum = 4 })
	got := g.NumElec([]float64{1.0, 0.5})
	assert.Equal(t, []float64{0, 80000}, got)
}

func TestDiffuseElectronsConservesCharge(t *testing.T) {
	g := newTestGenerator(t, func(c *Config) { c.DiffSigma = 0.001 })
	in := mat.NewDense(3, 4, []float64{
		0.01, 0.02, 4, 100,
		-0.03, 0.00, 9, 250,
		0.00, 0.05, 0, 40,
	})

	out := g.DiffuseElectrons(in)
	rows, cols := out.Dims()
	require.Equal(t, 27, rows)
	require.Equal(t, 4, cols)

	for i := 0; i < 3; i++ {
		amp := in.At(i, 3)
		total := 0.0
		for k := 0; k <= numSatellites; k++ {
			total += out.At(k*3+i, 3)
		}
		assert.InDelta(t, amp, total, 1e-9, "point %d", i)
		assert.InDelta(t, 0.4*amp, out.At(i, 3), 1e-12)
		for k := 1; k <= numSatellites; k++ {
			assert.InDelta(t, 0.6/8*amp, out.At(k*3+i, 3), 1e-12)
			assert.Equal(t, in.At(i, 2), out.At(k*3+i, 2))
		}
	}
}

func TestDiffuseElectronsOffsets(t *testing.T) {
	g := newTestGenerator(t, func(c *Config) { c.DiffSigma = 0.001 })
	in := mat.NewDense(1, 4, []float64{0.01, 0.02, 4, 100})
	out := g.DiffuseElectrons(in)

	// sqrt(tb) = 2, so cardinal offsets are 0.002 and diagonal ones 0.002·√2.
	d := 0.002 * math.Sqrt(2)
	want := [][2]float64{
		{0.01, 0.02},
		{0.012, 0.02},
		{0.008, 0.02},
		{0.01, 0.022},
		{0.01, 0.018},
		{0.01 + d, 0.02 + d},
		{0.01 + d, 0.02 - d},
		{0.01 - d, 0.02 + d},
		{0.01 - d, 0.02 - d},
	}
	for i, w := range want {
		assert.InDelta(t, w[0], out.At(i, 0), 1e-12, "row %d x", i)
		assert.InDelta(t, w[1], out.At(i, 1), 1e-12, "row %d y", i)
	}
	for i := 1; i < len(want); i++ {
		r := math.Hypot(out.At(i, 0)-0.01, out.At(i, 1)-0.02)
		if i <= 4 {
			assert.InDelta(t, 0.002, r, 1e-12)
		} else {
			assert.InDelta(t, 0.004, r, 1e-12)
		}
	}
}

func TestDiffuseElectronsEmpty(t *testing.T) {
	g := newTestGenerator(t, nil)
	assert.True(t, g.DiffuseElectrons(&mat.Dense{}).IsEmpty())
}

func TestElecPulseCausality(t *testing.T) {
	offsets := []float64{0, 0.5, 37.4, 100, 510.2}
	for _, off := range offsets {
		p := ElecPulse(1000, 280e-9, 12.5e6, off)
		first := int(math.Ceil(off))
		for i := 0; i < first; i++ {
			if p[i] != 0 {
				t.Fatalf("offset %v: sample %d = %v, want 0", off, i, p[i])
			}
		}
		if first+1 < NumTimeBuckets && p[first+1] == 0 {
			t.Errorf("offset %v: expected signal after arrival", off)
		}
	}
}

func TestElecPulseOutOfWindowOffsets(t *testing.T) {
	tests := []struct {
		name   string
		offset float64
	}{
		{"last_bucket_end", NumTimeBuckets},
		{"far_future", 1e20},
		{"pos_inf", math.Inf(1)},
		{"nan", math.NaN()},
		{"far_past", -1e300},
		{"neg_inf", math.Inf(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Signal
			require.NotPanics(t, func() { p = ElecPulse(1000, 280e-9, 12.5e6, tt.offset) })
			for i, v := range p {
				if v != 0 {
					t.Fatalf("sample %d = %v, want 0", i, v)
				}
			}
		})
	}
}

func TestElecPulseLinearity(t *testing.T) {
	base := ElecPulse(1.7, 280e-9, 12.5e6, 12.3)
	for _, k := range []float64{0, -2, 3, 1e4} {
		scaled := ElecPulse(1.7*k, 280e-9, 12.5e6, 12.3)
		for i := range base {
			assert.InDelta(t, k*base[i], scaled[i], 1e-12*math.Max(1, math.Abs(k*base[i])))
		}
	}
}

func TestElecPulseUnitPeak(t *testing.T) {
	// shape·clock = 100 buckets per unit of τ, so the sampled peak is close to
	// the continuous one.
	p := ElecPulse(1, 1e-4, 1e6, 0)
	idx, peak := p.Max()
	assert.InDelta(t, 1.0, peak, 0.01)
	assert.InDelta(t, 116, idx, 3)
}

func TestApproxSinMatchesTaylorPolynomial(t *testing.T) {
	for _, x := range []float64{0, 0.1, 0.5, 1, 2} {
		want := x - math.Pow(x, 3)/6 + math.Pow(x, 5)/120 - math.Pow(x, 7)/5040
		assert.InDelta(t, want, approxSin(x), 1e-12)
	}
	assert.InDelta(t, math.Sin(0.5), approxSin(0.5), 1e-7)
}

func TestSquareWave(t *testing.T) {
	assert.Equal(t, []float64{0, 2, 2, 0, 0}, SquareWave(5, 1, 2, 2))
	assert.Equal(t, []float64{0, 0, 0, 1}, SquareWave(4, 3, 10, 1))
	assert.Equal(t, []float64{1, 0, 0}, SquareWave(3, -1, 2, 1))
	assert.Empty(t, SquareWave(0, 0, 1, 1))
}

func TestConversionFactor(t *testing.T) {
	g := newTestGenerator(t, nil)
	want := 500 * 1.602176634e-19 / 4e-12 * 4096
	assert.InDelta(t, want, g.ConversionFactor(), 1e-12)
}

func TestPrepareTrack(t *testing.T) {
	g := newTestGenerator(t, nil)
	pos, en := axialTrack(0.0025, 0.0025, 0, 0.5, 6)

	got, err := g.PrepareTrack(pos, en)
	require.NoError(t, err)

	rows, cols := got.Dims()
	require.Equal(t, 54, rows)
	require.Equal(t, 4, cols)
	// z = 0.5 m at 250 buckets per metre.
	assert.InDelta(t, 125, got.At(5, 2), 1e-9)
	assert.InDelta(t, 0.0025, got.At(5, 0), 1e-12)
}

func TestPrepareTrackErrors(t *testing.T) {
	g := newTestGenerator(t, nil)
	pos, _ := axialTrack(0, 0, 0, 0.5, 4)

	_, err := g.PrepareTrack(pos, []float64{1, 2})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = g.PrepareTrack(&mat.Dense{}, nil)
	assert.ErrorIs(t, err, track.ErrEmptyTrack)
}

func TestMakeEventSinglePad(t *testing.T) {
	g := newTestGenerator(t, nil)
	pos, en := axialTrack(0.0025, 0.0025, 0.1, 0.5, 20)

	evt, err := g.MakeEvent(pos, en)
	require.NoError(t, err)
	require.Len(t, evt, 1)

	pad := g.Pads().PadAt(0.0025, 0.0025)
	sig, ok := evt[pad]
	require.True(t, ok)

	_, peak := sig.Max()
	assert.Greater(t, peak, 0.0)

	mesh := evt.Mesh()
	assert.Equal(t, *sig, mesh)

	table, err := g.MakePeaksTable(pos, en)
	require.NoError(t, err)
	r, c := table.Dims()
	require.Equal(t, 1, r)
	require.Equal(t, 5, c)
	cx, cy := g.Pads().PadCenter(pad)
	assert.Equal(t, cx, table.At(0, 0))
	assert.Equal(t, cy, table.At(0, 1))
	assert.Equal(t, peak, table.At(0, 3))
	assert.Equal(t, float64(pad), table.At(0, 4))
	// Deposits span buckets 25..125, so the centroid sits inside that window.
	assert.Greater(t, table.At(0, 2), 25.0)
	assert.Less(t, table.At(0, 2), 135.0)
}

func TestMakeEventSpreadsAcrossPads(t *testing.T) {
	g := newTestGenerator(t, func(c *Config) { c.DiffSigma = 0.001 })
	pos, en := axialTrack(0.0025, 0.0025, 0.2, 0.8, 30)

	evt, err := g.MakeEvent(pos, en)
	require.NoError(t, err)
	assert.Greater(t, len(evt), 1)

	pads := evt.Pads()
	for i := 1; i < len(pads); i++ {
		assert.Less(t, int(pads[i-1]), int(pads[i]))
	}
}

func TestMakeEventSkipsUnmappedPads(t *testing.T) {
	g := newTestGenerator(t, nil)
	pos, en := axialTrack(1.0, 1.0, 0.1, 0.5, 10)

	evt, err := g.MakeEvent(pos, en)
	require.NoError(t, err)
	assert.Empty(t, evt)

	table, err := g.MakePeaksTable(pos, en)
	require.NoError(t, err)
	assert.True(t, table.IsEmpty())

	hits, err := g.MakeHitPattern(pos, en)
	require.NoError(t, err)
	assert.Zero(t, TotalCharge(hits))
}

func TestMakeEventOverflowPolicies(t *testing.T) {
	// 3 m of drift is 750 buckets, well past the window.
	pos, en := axialTrack(0.0025, 0.0025, 0.1, 3.0, 30)

	drop := newTestGenerator(t, nil)
	evt, err := drop.MakeEvent(pos, en)
	require.NoError(t, err)
	require.Len(t, evt, 1)

	strict := newTestGenerator(t, func(c *Config) { c.Overflow = OverflowError })
	_, err = strict.MakeEvent(pos, en)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeBucketOverflow)

	var tbErr *TBOverflowError
	require.True(t, errors.As(err, &tbErr))
	assert.Greater(t, tbErr.TimeBucket, float64(MaxTimeBucket))
	assert.Contains(t, tbErr.Error(), "TB overflow")
	assert.Contains(t, tbErr.Error(), "beyond last bucket 511")

	// Inside the window both policies agree.
	inPos, inEn := axialTrack(0.0025, 0.0025, 0.1, 1.5, 30)
	a, err := drop.MakeEvent(inPos, inEn)
	require.NoError(t, err)
	b, err := strict.MakeEvent(inPos, inEn)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMakeEventNegativeTimeBucket(t *testing.T) {
	pos, en := axialTrack(0.0025, 0.0025, -0.2, -0.1, 5)

	// Deposits before the trigger are dropped under both policies.
	for _, policy := range []OverflowPolicy{OverflowDrop, OverflowError} {
		t.Run(policy.String(), func(t *testing.T) {
			g := newTestGenerator(t, func(c *Config) { c.Overflow = policy })
			evt, err := g.MakeEvent(pos, en)
			require.NoError(t, err)
			assert.Empty(t, evt)
		})
	}
}

func TestMakeEventDoesNotShareStorage(t *testing.T) {
	g := newTestGenerator(t, nil)
	pos, en := axialTrack(0.0025, 0.0025, 0.1, 0.5, 10)

	a, err := g.MakeEvent(pos, en)
	require.NoError(t, err)
	b, err := g.MakeEvent(pos, en)
	require.NoError(t, err)

	for pad := range a {
		a[pad][0] = 1e9
		assert.NotEqual(t, a[pad][0], b[pad][0])
	}
}

func TestMakeHitPatternTotals(t *testing.T) {
	g := newTestGenerator(t, nil)
	pos, en := axialTrack(0.0025, 0.0025, 0.1, 0.5, 10)

	hits, err := g.MakeHitPattern(pos, en)
	require.NoError(t, err)
	require.Len(t, hits, g.Pads().NumPads())

	nElec := g.NumElec(en)
	total := 0.0
	for _, n := range nElec {
		total += n
	}
	// The last diffused row (SW satellite of the last sample) never counts.
	want := g.ConversionFactor() * (total - nElec[len(nElec)-1]*0.6/8)
	assert.InDelta(t, want, TotalCharge(hits), 1e-9*want)

	pad := g.Pads().PadAt(0.0025, 0.0025)
	assert.InDelta(t, want, hits[pad], 1e-9*want)
}

func TestMakePeaks(t *testing.T) {
	g := newTestGenerator(t, nil)
	pos, en := axialTrack(0.0025, 0.0025, 0.1, 0.5, 10)

	peaks, err := g.MakePeaks(pos, en)
	require.NoError(t, err)
	require.Len(t, peaks, 1)

	evt, err := g.MakeEvent(pos, en)
	require.NoError(t, err)
	for pad, pk := range peaks {
		idx, val := evt[pad].Max()
		assert.Equal(t, idx, pk.TimeBucket)
		assert.Equal(t, uint64(math.Floor(val)), pk.Amplitude)
	}
}

func TestSignalCentroidThresholds(t *testing.T) {
	t.Run("zero_signal_is_noise", func(t *testing.T) {
		_, _, ok := signalCentroid(&Signal{})
		assert.False(t, ok)
	})

	t.Run("boundary_sample_included", func(t *testing.T) {
		var sig Signal
		sig[10] = 1.0
		sig[11] = 0.3
		sig[12] = 0.29
		centroid, peak, ok := signalCentroid(&sig)
		require.True(t, ok)
		assert.Equal(t, 1.0, peak)
		assert.InDelta(t, (10*1.0+11*0.3)/1.3, centroid, 1e-12)
	})

	t.Run("below_noise_floor", func(t *testing.T) {
		var sig Signal
		sig[5] = 5e-4
		sig[6] = 4e-4
		_, _, ok := signalCentroid(&sig)
		assert.False(t, ok)
	})
}

func TestPeaksTableDropsNoisePads(t *testing.T) {
	g := newTestGenerator(t, nil)
	evt := make(Event)
	evt.signal(3)[20] = 50
	evt.signal(7)
	evt.signal(9)[40] = 1e-4

	table := g.peaksTable(evt)
	r, _ := table.Dims()
	require.Equal(t, 1, r)
	assert.Equal(t, 3.0, table.At(0, 4))
	assert.Equal(t, 20.0, table.At(0, 2))
}

func TestTrackOverloads(t *testing.T) {
	g := newTestGenerator(t, nil)
	var tr track.Track
	for i := 0; i < 8; i++ {
		tr.Append(track.Point{X: 0.0025, Y: 0.0025, Z: 0.1 + 0.05*float64(i), Energy: 2 - 0.1*float64(i)})
	}

	evt, err := g.MakeEventFromTrack(tr)
	require.NoError(t, err)
	direct, err := g.MakeEvent(tr.PositionMatrix(), tr.EnergyVector())
	require.NoError(t, err)
	assert.Equal(t, direct, evt)

	mesh, err := g.MakeMeshSignalFromTrack(tr)
	require.NoError(t, err)
	assert.Equal(t, direct.Mesh(), mesh)

	peaks, err := g.MakePeaksFromTrack(tr)
	require.NoError(t, err)
	assert.Len(t, peaks, 1)

	table, err := g.MakePeaksTableFromTrack(tr)
	require.NoError(t, err)
	r, _ := table.Dims()
	assert.Equal(t, 1, r)
}

func BenchmarkMakeEvent(b *testing.B) {
	g := newTestGenerator(b, func(c *Config) {
		c.Tilt = 0.1
		c.DiffSigma = 0.002
	})
	pos, en := axialTrack(0.01, -0.02, 0.1, 0.6, 500)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := g.MakeEvent(pos, en); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMakePeaksTable(b *testing.B) {
	g := newTestGenerator(b, nil)
	pos, en := axialTrack(0.01, -0.02, 0.1, 0.6, 500)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := g.MakePeaksTable(pos, en); err != nil {
			b.Fatal(err)
		}
	}
}
