package mcmin

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// pairColumn is the column used to pair experimental and simulated rows.
const pairColumn = 2

// FindDeviations compares a simulated observable matrix against experimental
// data. Each experimental row is paired with the simulated row closest to it
// in z (column 2, or the last shared column for narrower matrices), and the
// result row is exp − sim over the shared columns. A row is all NaN when the
// experimental row contains NaN or no simulated row can be paired with it.
// The result has one row per experimental row.
func FindDeviations(sim, exp *mat.Dense) *mat.Dense {
	if exp == nil || exp.IsEmpty() {
		return &mat.Dense{}
	}
	nExp, expCols := exp.Dims()
	cols := expCols
	var nSim int
	if sim != nil && !sim.IsEmpty() {
		var simCols int
		nSim, simCols = sim.Dims()
		cols = min(cols, simCols)
	}
	key := min(pairColumn, cols-1)

	res := mat.NewDense(nExp, cols, nil)
	for i := 0; i < nExp; i++ {
		row := exp.RawRowView(i)[:cols]
		j := -1
		if !slices.ContainsFunc(row, math.IsNaN) {
			j = nearestRow(sim, nSim, key, row[key])
		}
		if j < 0 {
			for c := 0; c < cols; c++ {
				res.Set(i, c, math.NaN())
			}
			continue
		}
		out := res.RawRowView(i)
		floats.SubTo(out, row, sim.RawRowView(j)[:cols])
	}
	return res
}

// nearestRow returns the index of the row of m whose key column is closest to
// v, ignoring rows with a NaN key. It returns -1 when there is none.
func nearestRow(m *mat.Dense, n, key int, v float64) int {
	best := -1
	bestDist := math.Inf(1)
	for j := 0; j < n; j++ {
		d := math.Abs(m.At(j, key) - v)
		if d < bestDist {
			best, bestDist = j, d
		}
	}
	return best
}

// DropNaNs returns the non-NaN elements of v in order.
func DropNaNs(v []float64) []float64 {
	out := make([]float64, 0, len(v))
	for _, x := range v {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

// DropNaNRows returns a copy of m without the rows that contain a NaN. The
// result is empty when every row is dropped.
func DropNaNRows(m *mat.Dense) *mat.Dense {
	if m == nil || m.IsEmpty() {
		return &mat.Dense{}
	}
	n, cols := m.Dims()
	var data []float64
	for i := 0; i < n; i++ {
		row := m.RawRowView(i)
		if slices.ContainsFunc(row, math.IsNaN) {
			continue
		}
		data = append(data, row...)
	}
	if len(data) == 0 {
		return &mat.Dense{}
	}
	return mat.NewDense(len(data)/cols, cols, data)
}

// Score reduces a deviation matrix to the mean squared row norm over rows
// without NaN. Lower is better.
func Score(devs *mat.Dense) (float64, error) {
	clean := DropNaNRows(devs)
	if clean.IsEmpty() {
		return math.Inf(1), ErrUnscorable
	}
	n, _ := clean.Dims()
	total := 0.0
	for i := 0; i < n; i++ {
		row := clean.RawRowView(i)
		total += floats.Dot(row, row)
	}
	score := total / float64(n)
	if math.IsInf(score, 0) {
		return math.Inf(1), fmt.Errorf("%w: score overflow", ErrUnscorable)
	}
	return score, nil
}
