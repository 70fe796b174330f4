package report

import (
	"fmt"
	"math"
	"slices"

	"go-hep.org/x/hep/hbook"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/mcopt/internal/eventgen"
	"github.com/banshee-data/mcopt/internal/mcmin"
	"github.com/banshee-data/mcopt/internal/padplane"
)

// ScoreSummary describes the candidate scores of one minimizer iteration.
type ScoreSummary struct {
	Iteration int
	Count     int // finite scores
	Failed    int
	Min       float64
	Max       float64
	Mean      float64
	StdDev    float64
	Hist      *hbook.H1D
}

// SummarizeScores histograms the finite scores of the given iteration of a
// minimizer history into nbins bins. Failed and non-finite candidates are
// counted but not filled. Mean and StdDev are NaN when too few scores are
// available; Hist is nil when there are none.
func SummarizeScores(history *mat.Dense, iteration, nbins int) ScoreSummary {
	sum := ScoreSummary{
		Iteration: iteration,
		Min:       math.NaN(),
		Max:       math.NaN(),
		Mean:      math.NaN(),
		StdDev:    math.NaN(),
	}
	if history == nil || history.IsEmpty() {
		return sum
	}
	if nbins < 1 {
		nbins = 1
	}

	rows, cols := history.Dims()
	p := cols - mcmin.HistExtra
	if p < 0 {
		return sum
	}
	var scores []float64
	for i := 0; i < rows; i++ {
		row := history.RawRowView(i)
		if int(row[p+mcmin.HistIteration]) != iteration {
			continue
		}
		s := row[p+mcmin.HistScore]
		if row[p+mcmin.HistFailed] != 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			sum.Failed++
			continue
		}
		scores = append(scores, s)
	}
	sum.Count = len(scores)
	if sum.Count == 0 {
		return sum
	}

	sum.Min = slices.Min(scores)
	sum.Max = slices.Max(scores)
	if sum.Count == 1 {
		sum.Mean = scores[0]
	} else {
		sum.Mean, sum.StdDev = stat.MeanStdDev(scores, nil)
	}

	// The upper edge is exclusive; widen it so Max lands in the last bin.
	lo, hi := sum.Min, sum.Max
	if hi > lo {
		hi += (hi - lo) * 1e-6
	} else {
		lo, hi = lo-0.5, hi+0.5
	}
	sum.Hist = hbook.NewH1D(nbins, lo, hi)
	for _, s := range scores {
		sum.Hist.Fill(s, 1)
	}
	return sum
}

// Bins returns a label and count for every histogram bin.
func (s ScoreSummary) Bins() ([]string, []float64) {
	if s.Hist == nil {
		return nil, nil
	}
	bins := s.Hist.Binning.Bins
	labels := make([]string, len(bins))
	counts := make([]float64, len(bins))
	for i, b := range bins {
		labels[i] = fmt.Sprintf("%.3g", b.XMid())
		counts[i] = b.SumW()
	}
	return labels, counts
}

// strongestPads returns up to n pads ordered by decreasing peak amplitude.
func strongestPads(evt eventgen.Event, n int) []padplane.Pad {
	pads := evt.Pads()
	peak := func(p padplane.Pad) float64 {
		_, v := evt[p].Max()
		return v
	}
	slices.SortStableFunc(pads, func(a, b padplane.Pad) int {
		pa, pb := peak(a), peak(b)
		switch {
		case pa > pb:
			return -1
		case pa < pb:
			return 1
		}
		return 0
	})
	if len(pads) > n {
		pads = pads[:n]
	}
	return pads
}
