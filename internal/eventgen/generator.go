// Package eventgen turns a particle trajectory into the per-pad waveforms the
// TPC electronics would record.
//
// The pipeline is: untilt the trajectory, convert it to raw readout
// coordinates, count the liberated electrons, spread them with a diffusion
// kernel, then accumulate one shaped pulse per deposit on the pad underneath.
// A Generator is immutable and safe for concurrent use.
package eventgen

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/mcopt/internal/calib"
	"github.com/banshee-data/mcopt/internal/padplane"
	"github.com/banshee-data/mcopt/internal/physics"
	"github.com/banshee-data/mcopt/internal/track"
)

const (
	// peakThresholdFraction is the fraction of a pad's maximum a sample must
	// reach to enter the time centroid.
	peakThresholdFraction = 0.3
	// peakNoiseFloor is the minimum thresholded charge for a pad to count.
	peakNoiseFloor = 1e-3
)

// Peak is the maximum of a pad signal.
type Peak struct {
	TimeBucket int
	Amplitude  uint64
}

// Generator simulates detector events for a fixed configuration.
type Generator struct {
	cfg  Config
	pads padplane.PadPlane
}

// New validates cfg and returns a Generator reading pads from the given plane.
func New(pads padplane.PadPlane, cfg Config) (*Generator, error) {
	if pads == nil {
		return nil, fmt.Errorf("%w: pad plane is nil", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg, pads: pads}, nil
}

// Config returns the generator's configuration.
func (g *Generator) Config() Config {
	return g.cfg
}

// Pads returns the pad plane the generator reads from.
func (g *Generator) Pads() padplane.PadPlane {
	return g.pads
}

// ConversionFactor converts a number of primary electrons into ADC bins: the
// avalanche charge as a fraction of the electronics full-scale charge, times
// the 4096 ADC bins.
func (g *Generator) ConversionFactor() float64 {
	return g.cfg.MicromegasGain * physics.ElementaryCharge / g.cfg.ElectronicsGain * adcBins
}

// PrepareTrack converts lab-frame positions (n×3, metres) and energies (MeV/u)
// into diffused raw deposits with columns (x, y, tb, nElec).
func (g *Generator) PrepareTrack(pos *mat.Dense, en []float64) (*mat.Dense, error) {
	if pos.IsEmpty() {
		return nil, fmt.Errorf("prepare track: %w", track.ErrEmptyTrack)
	}
	n, _ := pos.Dims()
	if n != len(en) {
		return nil, fmt.Errorf("prepare track: %d positions, %d energies: %w", n, len(en), ErrLengthMismatch)
	}

	tilted := calib.UnTiltAndRecenter(pos, g.cfg.Tilt)
	raw := calib.Uncalibrate(tilted, g.cfg.DriftVelocity, g.cfg.Clock, 0)

	uncal := mat.NewDense(n, 4, nil)
	uncal.Slice(0, n, 0, 3).(*mat.Dense).Copy(raw)
	uncal.SetCol(3, g.NumElec(en))

	return g.DiffuseElectrons(uncal), nil
}

// MakeEvent simulates the pad signals produced by a trajectory. Deposits
// outside the pad plane or before the first time bucket are skipped. Deposits
// past the last time bucket are handled according to the configured
// OverflowPolicy. The last diffused row never contributes.
func (g *Generator) MakeEvent(pos *mat.Dense, en []float64) (Event, error) {
	uncal, err := g.PrepareTrack(pos, en)
	if err != nil {
		return nil, err
	}

	evt := make(Event)
	conv := g.ConversionFactor()

	rows, _ := uncal.Dims()
	for i := 0; i < rows-1; i++ {
		pad := g.pads.PadAt(uncal.At(i, 0), uncal.At(i, 1))
		if pad == padplane.NoPad {
			continue
		}
		tb := uncal.At(i, 2)
		if !(tb >= 0) {
			// Deposits before the trigger never reach the window.
			continue
		}
		if tb > MaxTimeBucket {
			if g.cfg.Overflow == OverflowError {
				return nil, &TBOverflowError{TimeBucket: tb, Pad: pad}
			}
			continue
		}
		pulse := ElecPulse(conv*uncal.At(i, 3), g.cfg.Shape, g.cfg.Clock, tb)
		evt.signal(pad).add(&pulse)
	}
	return evt, nil
}

// MakeEventFromTrack runs MakeEvent on a track's positions and energies.
func (g *Generator) MakeEventFromTrack(tr track.Track) (Event, error) {
	return g.MakeEvent(tr.PositionMatrix(), tr.EnergyVector())
}

// MakePeaks returns the maximum of each pad signal.
func (g *Generator) MakePeaks(pos *mat.Dense, en []float64) (map[padplane.Pad]Peak, error) {
	evt, err := g.MakeEvent(pos, en)
	if err != nil {
		return nil, err
	}
	res := make(map[padplane.Pad]Peak, len(evt))
	for pad, sig := range evt {
		idx, val := sig.Max()
		amp := math.Floor(val)
		if amp < 0 {
			amp = 0
		}
		res[pad] = Peak{TimeBucket: idx, Amplitude: uint64(amp)}
	}
	return res, nil
}

// MakePeaksFromTrack runs MakePeaks on a track.
func (g *Generator) MakePeaksFromTrack(tr track.Track) (map[padplane.Pad]Peak, error) {
	return g.MakePeaks(tr.PositionMatrix(), tr.EnergyVector())
}

// MakePeaksTable returns one row (pad x, pad y, time centroid, peak, pad id)
// per pad, in ascending pad order. The time centroid is charge-weighted over
// samples at or above 30% of the pad maximum. Pads whose thresholded charge is
// below 1e-3 are treated as noise and left out. The result is empty when no
// pad survives.
func (g *Generator) MakePeaksTable(pos *mat.Dense, en []float64) (*mat.Dense, error) {
	evt, err := g.MakeEvent(pos, en)
	if err != nil {
		return nil, err
	}
	return g.peaksTable(evt), nil
}

// MakePeaksTableFromTrack runs MakePeaksTable on a track.
func (g *Generator) MakePeaksTableFromTrack(tr track.Track) (*mat.Dense, error) {
	return g.MakePeaksTable(tr.PositionMatrix(), tr.EnergyVector())
}

func (g *Generator) peaksTable(evt Event) *mat.Dense {
	var data []float64
	for _, pad := range evt.Pads() {
		centroid, peak, ok := signalCentroid(evt[pad])
		if !ok {
			continue
		}
		x, y := g.pads.PadCenter(pad)
		data = append(data, x, y, centroid, peak, float64(pad))
	}
	if len(data) == 0 {
		return &mat.Dense{}
	}
	return mat.NewDense(len(data)/5, 5, data)
}

// signalCentroid returns the thresholded time centroid and the maximum of sig.
func signalCentroid(sig *Signal) (centroid, peak float64, ok bool) {
	_, peak = sig.Max()
	threshold := peakThresholdFraction * peak

	var total, weighted float64
	for i, v := range sig {
		if v >= threshold {
			total += v
			weighted += float64(i) * v
		}
	}
	if total < peakNoiseFloor {
		return 0, 0, false
	}
	return weighted / total, peak, true
}

// MakeMeshSignal returns the sum of all pad signals.
func (g *Generator) MakeMeshSignal(pos *mat.Dense, en []float64) (Signal, error) {
	evt, err := g.MakeEvent(pos, en)
	if err != nil {
		return Signal{}, err
	}
	return evt.Mesh(), nil
}

// MakeMeshSignalFromTrack runs MakeMeshSignal on a track.
func (g *Generator) MakeMeshSignalFromTrack(tr track.Track) (Signal, error) {
	return g.MakeMeshSignal(tr.PositionMatrix(), tr.EnergyVector())
}

// MakeHitPattern returns the total charge (ADC bins) deposited on each pad,
// indexed by pad id. Time is ignored, so the time window does not apply.
func (g *Generator) MakeHitPattern(pos *mat.Dense, en []float64) ([]float64, error) {
	uncal, err := g.PrepareTrack(pos, en)
	if err != nil {
		return nil, err
	}

	hits := make([]float64, g.pads.NumPads())
	conv := g.ConversionFactor()

	rows, _ := uncal.Dims()
	for i := 0; i < rows-1; i++ {
		pad := g.pads.PadAt(uncal.At(i, 0), uncal.At(i, 1))
		if pad == padplane.NoPad || int(pad) >= len(hits) {
			continue
		}
		hits[pad] += conv * uncal.At(i, 3)
	}
	return hits, nil
}

// TotalCharge sums a hit pattern.
func TotalCharge(hits []float64) float64 {
	return floats.Sum(hits)
}
