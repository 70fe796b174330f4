// Package calib converts between lab-frame positions and the raw readout
// frame of the TPC (pad-plane x, y and drift time bucket).
//
// Positions are in metres, drift velocities in cm/µs and clocks in Hz. The
// factor clock·1e-4 converts a velocity in cm/µs into metres per time bucket.
//
// All functions take n×3 matrices and panic with mat.ErrShape otherwise, the
// same way gonum does.
package calib

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/mcopt/internal/track"
)

// Vec3 is a 3-vector, used for the drift velocity.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) negated() *mat.VecDense {
	return mat.NewVecDense(3, []float64{-v.X, -v.Y, -v.Z})
}

// bucketScale returns clock·1e-4, the conversion between cm/µs and
// metres per time bucket.
func bucketScale(clock float64) float64 {
	return clock * 1e-4
}

// Calibrate converts raw (x, y, tb) positions into lab-frame positions by
// undoing the drift: x and y are shifted along the drift velocity in
// proportion to the time bucket, and z becomes the drift distance.
func Calibrate(pos *mat.Dense, vd Vec3, clock float64) *mat.Dense {
	if pos.IsEmpty() {
		return &mat.Dense{}
	}
	n, _ := pos.Dims()
	tb := mat.Col(nil, 2, pos)

	var out mat.Dense
	out.RankOne(pos, 1/bucketScale(clock), mat.NewVecDense(n, tb), vd.negated())
	for i := 0; i < n; i++ {
		out.Set(i, 2, out.At(i, 2)-tb[i])
	}
	return &out
}

// CalibrateTrack applies Calibrate to the positions of tr.
func CalibrateTrack(tr track.Track, vd Vec3, clock float64) *mat.Dense {
	return Calibrate(tr.PositionMatrix(), vd, clock)
}

// Uncalibrate is the inverse of Calibrate. The time bucket implied by z and
// vd.Z is shifted by offset, and x and y are projected back onto the pad plane
// at that time bucket. vd.Z must be non-zero.
func Uncalibrate(pos *mat.Dense, vd Vec3, clock float64, offset int) *mat.Dense {
	if pos.IsEmpty() {
		return &mat.Dense{}
	}
	n, _ := pos.Dims()
	scale := bucketScale(clock)

	tb := make([]float64, n)
	for i := range tb {
		tb[i] = pos.At(i, 2)*scale/(-vd.Z) + float64(offset)
	}

	var out mat.Dense
	out.RankOne(pos, -1/scale, mat.NewVecDense(n, tb), vd.negated())
	out.SetCol(2, tb)
	return &out
}

// UncalibrateTrack applies Uncalibrate to the positions of tr.
func UncalibrateTrack(tr track.Track, vd Vec3, clock float64, offset int) *mat.Dense {
	return Uncalibrate(tr.PositionMatrix(), vd, clock, offset)
}

// UnTiltAndRecenter rotates positions about the x axis by −tilt to undo the
// tilt of the detector. The rotation pivots about the micromegas, 1 m from the
// beam entrance, so y is then shifted by tan(tilt).
func UnTiltAndRecenter(pos *mat.Dense, tilt float64) *mat.Dense {
	if pos.IsEmpty() {
		return &mat.Dense{}
	}
	c, s := math.Cos(-tilt), math.Sin(-tilt)
	rot := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	})

	var out mat.Dense
	out.Mul(pos, rot.T())

	n, _ := out.Dims()
	shift := math.Tan(tilt)
	for i := 0; i < n; i++ {
		out.Set(i, 1, out.At(i, 1)-shift)
	}
	return &out
}
