// Package report renders diagnostics for generated events and minimizer
// runs: PNG plots, HTML charts and score summaries.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"math"

	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/mcopt/internal/eventgen"
	"github.com/banshee-data/mcopt/internal/monitoring"
)

// ErrNothingToPlot is returned when the input has no plottable values.
var ErrNothingToPlot = errors.New("nothing to plot")

// PlotConvergence writes the per-iteration best score on a log axis. Scores
// that are not positive and finite cannot be drawn on a log axis and are
// skipped. The image format follows the extension of path.
func PlotConvergence(minScores []float64, path string) error {
	pts := make(plotter.XYs, 0, len(minScores))
	for i, s := range minScores {
		if !(s > 0) || math.IsInf(s, 1) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(i + 1), Y: s})
	}
	if len(pts) == 0 {
		return fmt.Errorf("convergence: %w", ErrNothingToPlot)
	}

	p := plot.New()
	p.Title.Text = "Minimizer convergence"
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "Best score"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return err
	}
	line.Width = vg.Points(1)
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	points.Color = line.Color
	p.Add(plotter.NewGrid(), line, points)
	// A flat curve would leave a zero-height log axis.
	if p.Y.Min == p.Y.Max {
		p.Y.Min /= 10
		p.Y.Max *= 10
	}

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save convergence plot: %w", err)
	}
	monitoring.Logf("[report] Wrote convergence plot (%d iterations) to %s", len(pts), path)
	return nil
}

// PlotSignal writes a waveform against time bucket.
func PlotSignal(sig eventgen.Signal, title, path string) error {
	pts := make(plotter.XYs, len(sig))
	for i, v := range sig {
		pts[i] = plotter.XY{X: float64(i), Y: v}
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time bucket"
	p.Y.Label.Text = "Amplitude (ADC)"
	p.X.Min = 0
	p.X.Max = float64(len(sig) - 1)

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Width = vg.Points(1)
	p.Add(line)

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save signal plot: %w", err)
	}
	return nil
}

// PlotScoreHistogram draws the histogram held by a ScoreSummary.
func PlotScoreHistogram(sum ScoreSummary, path string) error {
	if sum.Hist == nil || sum.Count == 0 {
		return fmt.Errorf("score histogram: %w", ErrNothingToPlot)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Scores, iteration %d", sum.Iteration)
	p.X.Label.Text = "Score"
	p.Y.Label.Text = "Candidates"

	h := hplot.NewH1D(sum.Hist)
	h.FillColor = nil
	h.LineStyle.Color = color.RGBA{A: 255}
	h.Infos.Style = hplot.HInfoNone
	p.Add(h)

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save score histogram: %w", err)
	}
	return nil
}
