package report

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/mcopt/internal/eventgen"
)

// ErrEmptyEvent is returned when an event has no hit pads.
var ErrEmptyEvent = errors.New("event has no hit pads")

// maxChartPads caps the number of per-pad series; the strongest pads win.
const maxChartPads = 32

// WriteEventChart renders an HTML line chart of an event: one series for each
// hit pad, plus the mesh sum.
func WriteEventChart(w io.Writer, evt eventgen.Event) error {
	if len(evt) == 0 {
		return ErrEmptyEvent
	}

	buckets := make([]int, eventgen.NumTimeBuckets)
	for i := range buckets {
		buckets[i] = i
	}

	pads := strongestPads(evt, maxChartPads)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Event", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Pad signals", Subtitle: fmt.Sprintf("pads=%d shown=%d", len(evt), len(pads))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time bucket", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "ADC", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(buckets)

	mesh := evt.Mesh()
	line.AddSeries("mesh", lineData(&mesh))
	for _, pad := range pads {
		line.AddSeries(fmt.Sprintf("pad %d", pad), lineData(evt[pad]))
	}
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	return line.Render(w)
}

// WriteRunPage renders an HTML page with the convergence curve and the
// score histogram of a minimizer run.
func WriteRunPage(w io.Writer, minScores []float64, sum ScoreSummary) error {
	iters := make([]int, len(minScores))
	conv := make([]opts.LineData, len(minScores))
	for i, s := range minScores {
		iters[i] = i + 1
		if math.IsNaN(s) || math.IsInf(s, 0) {
			conv[i] = opts.LineData{Value: "-"}
			continue
		}
		conv[i] = opts.LineData{Value: s}
	}

	convChart := charts.NewLine()
	convChart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Convergence", Subtitle: fmt.Sprintf("iterations=%d", len(minScores))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Best score", Type: "log"}),
	)
	convChart.SetXAxis(iters).AddSeries("best", conv)

	labels, counts := sum.Bins()
	bars := make([]opts.BarData, len(counts))
	for i, c := range counts {
		bars[i] = opts.BarData{Value: c}
	}
	hist := charts.NewBar()
	hist.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Scores, iteration %d", sum.Iteration),
			Subtitle: fmt.Sprintf("n=%d failed=%d mean=%.4g sd=%.4g", sum.Count, sum.Failed, sum.Mean, sum.StdDev),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	hist.SetXAxis(labels).AddSeries("candidates", bars)

	page := components.NewPage()
	page.PageTitle = "Minimizer run"
	page.AddCharts(convChart, hist)
	return page.Render(w)
}

func lineData(sig *eventgen.Signal) []opts.LineData {
	data := make([]opts.LineData, len(sig))
	for i, v := range sig {
		data[i] = opts.LineData{Value: v}
	}
	return data
}
