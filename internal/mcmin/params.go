package mcmin

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// MakeParams draws numSets parameter vectors, one per row. Component j is
// normal with mean ctr[j] and standard deviation sigma[j], then clipped to
// [mins[j], maxes[j]]. A zero sigma yields ctr[j] without consuming a draw.
// Draws are taken row by row from src, so a seeded source gives a
// reproducible matrix.
func MakeParams(src rand.Source, ctr, sigma []float64, numSets int, mins, maxes []float64) (*mat.Dense, error) {
	p := len(ctr)
	if p == 0 {
		return nil, fmt.Errorf("make params: empty centre")
	}
	if len(sigma) != p || len(mins) != p || len(maxes) != p {
		return nil, fmt.Errorf("make params: length mismatch: ctr=%d sigma=%d mins=%d maxes=%d",
			p, len(sigma), len(mins), len(maxes))
	}
	if numSets <= 0 {
		return nil, fmt.Errorf("make params: numSets must be positive, got %d", numSets)
	}

	dists := make([]distuv.Normal, p)
	for j := range ctr {
		if !(sigma[j] >= 0) || math.IsInf(sigma[j], 0) {
			return nil, fmt.Errorf("make params: sigma[%d] = %v", j, sigma[j])
		}
		if !(mins[j] <= maxes[j]) {
			return nil, fmt.Errorf("make params: bounds[%d] = [%v, %v]", j, mins[j], maxes[j])
		}
		dists[j] = distuv.Normal{Mu: ctr[j], Sigma: sigma[j], Src: src}
	}

	res := mat.NewDense(numSets, p, nil)
	for i := 0; i < numSets; i++ {
		for j := range dists {
			v := ctr[j]
			if sigma[j] > 0 {
				v = dists[j].Rand()
			}
			res.Set(i, j, clip(v, mins[j], maxes[j]))
		}
	}
	return res, nil
}

func clip(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
