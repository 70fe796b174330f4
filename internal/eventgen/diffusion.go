package eventgen

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// centerFraction is the share of charge left at the original point.
	centerFraction = 0.4
	// numSatellites is the number of diffusion points around each deposit.
	numSatellites = 8
)

// NumElec converts a per-sample energy sequence (MeV/u) into the number of
// electrons liberated between consecutive samples. The first sample has none.
func (g *Generator) NumElec(en []float64) []float64 {
	res := make([]float64, len(en))
	scale := 1e6 * float64(g.cfg.MassNum)
	for i := 1; i < len(en); i++ {
		res[i] = math.Floor(-(en[i]*scale - en[i-1]*scale) / g.cfg.Ionization)
	}
	return res
}

// DiffuseElectrons spreads each (x, y, tb, nElec) row over a fixed 9-point
// kernel. The output has 9n rows: the n centre rows first, then one block of
// n rows per satellite in the order E, W, N, S, NE, SE, NW, SW. Satellite
// offsets scale with sqrt(tb).
func (g *Generator) DiffuseElectrons(tr *mat.Dense) *mat.Dense {
	if tr.IsEmpty() {
		return &mat.Dense{}
	}
	sigma := g.cfg.DiffSigma
	diag := sigma * math.Sqrt(2)
	offsets := [numSatellites][2]float64{
		{sigma, 0},     // E
		{-sigma, 0},    // W
		{0, sigma},     // N
		{0, -sigma},    // S
		{diag, diag},   // NE
		{diag, -diag},  // SE
		{-diag, diag},  // NW
		{-diag, -diag}, // SW
	}
	satFraction := (1 - centerFraction) / numSatellites

	n, cols := tr.Dims()
	res := mat.NewDense(n*(numSatellites+1), cols, nil)

	centers := res.Slice(0, n, 0, cols).(*mat.Dense)
	centers.Copy(tr)
	for i := 0; i < n; i++ {
		centers.Set(i, 3, tr.At(i, 3)*centerFraction)
	}

	for k, off := range offsets {
		first := n * (k + 1)
		for i := 0; i < n; i++ {
			spread := math.Sqrt(tr.At(i, 2))
			row := first + i
			res.Set(row, 0, tr.At(i, 0)+off[0]*spread)
			res.Set(row, 1, tr.At(i, 1)+off[1]*spread)
			res.Set(row, 2, tr.At(i, 2))
			res.Set(row, 3, tr.At(i, 3)*satFraction)
		}
	}
	return res
}
