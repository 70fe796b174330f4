package mcmin

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/mcopt/internal/calib"
	"github.com/banshee-data/mcopt/internal/eventgen"
	"github.com/banshee-data/mcopt/internal/track"
)

// Tracker integrates a trajectory from a parameter vector. Implementations
// must be deterministic and safe for concurrent use.
type Tracker interface {
	TrackParticle(params []float64) (track.Track, error)
}

// Observer turns a simulated trajectory into a matrix comparable with the
// experimental data. Implementations must be safe for concurrent use.
type Observer interface {
	Observe(tr track.Track) (*mat.Dense, error)
}

// PrepareSimulatedTrackMatrix returns the (x, y, z) columns of tr.
func PrepareSimulatedTrackMatrix(tr track.Track) (*mat.Dense, error) {
	if tr.Len() == 0 {
		return nil, track.ErrEmptyTrack
	}
	return tr.PositionMatrix(), nil
}

// PositionObserver compares trajectory positions directly.
type PositionObserver struct{}

// Observe implements Observer.
func (PositionObserver) Observe(tr track.Track) (*mat.Dense, error) {
	return PrepareSimulatedTrackMatrix(tr)
}

// PeakObserver runs the full event generator and returns the calibrated
// (x, y, z) of each pad's peak, the same summary built from measured events.
type PeakObserver struct {
	Gen *eventgen.Generator
}

// Observe implements Observer. An event with no surviving pads gives an empty
// matrix, which scores as unscorable.
func (o PeakObserver) Observe(tr track.Track) (*mat.Dense, error) {
	if o.Gen == nil {
		return nil, fmt.Errorf("peak observer: generator is nil")
	}
	table, err := o.Gen.MakePeaksTableFromTrack(tr)
	if err != nil {
		return nil, err
	}
	if table.IsEmpty() {
		return table, nil
	}
	n, _ := table.Dims()
	cfg := o.Gen.Config()
	return calib.Calibrate(table.Slice(0, n, 0, 3).(*mat.Dense), cfg.DriftVelocity, cfg.Clock), nil
}
