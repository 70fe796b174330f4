// Package track holds the trajectory container produced by a particle
// integrator and consumed by the event generator and the minimizer.
package track

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// NumColumns is the number of columns returned by Track.Matrix.
const NumColumns = 8

var (
	// ErrEmptyTrack is returned when a track has fewer than two samples.
	ErrEmptyTrack = errors.New("track has fewer than two samples")
	// ErrNonFinite is returned when a sample holds NaN or ±Inf.
	ErrNonFinite = errors.New("track sample is not finite")
)

// Point is a single integrator sample. Positions are in metres, Time in
// seconds, Energy in MeV per nucleon and DeDx in MeV/m. Azimuth and Polar
// give the direction of motion in radians.
type Point struct {
	X       float64
	Y       float64
	Z       float64
	Time    float64
	Energy  float64
	DeDx    float64
	Azimuth float64
	Polar   float64
}

// Track is an ordered sequence of samples along the particle's path.
type Track struct {
	Points []Point
}

// Len returns the number of samples.
func (t Track) Len() int {
	return len(t.Points)
}

// Append adds a sample at the end of the track.
func (t *Track) Append(p Point) {
	t.Points = append(t.Points, p)
}

// PositionMatrix returns an n×3 matrix of (x, y, z).
func (t Track) PositionMatrix() *mat.Dense {
	if len(t.Points) == 0 {
		return &mat.Dense{}
	}
	m := mat.NewDense(len(t.Points), 3, nil)
	for i, p := range t.Points {
		m.Set(i, 0, p.X)
		m.Set(i, 1, p.Y)
		m.Set(i, 2, p.Z)
	}
	return m
}

// EnergyVector returns the per-sample energy column.
func (t Track) EnergyVector() []float64 {
	en := make([]float64, len(t.Points))
	for i, p := range t.Points {
		en[i] = p.Energy
	}
	return en
}

// Matrix returns the full n×8 sample table with columns
// (x, y, z, time, energy, dE/dx, azimuth, polar).
func (t Track) Matrix() *mat.Dense {
	if len(t.Points) == 0 {
		return &mat.Dense{}
	}
	m := mat.NewDense(len(t.Points), NumColumns, nil)
	for i, p := range t.Points {
		m.SetRow(i, p.row())
	}
	return m
}

// Validate checks that the track can be simulated.
func (t Track) Validate() error {
	if len(t.Points) < 2 {
		return ErrEmptyTrack
	}
	for i, p := range t.Points {
		for _, v := range p.row() {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("sample %d: %w", i, ErrNonFinite)
			}
		}
	}
	return nil
}

func (p Point) row() []float64 {
	return []float64{p.X, p.Y, p.Z, p.Time, p.Energy, p.DeDx, p.Azimuth, p.Polar}
}
