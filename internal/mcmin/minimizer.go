// Package mcmin fits track parameters to experimental data with a Monte Carlo
// search that shrinks its sampling spread every iteration.
//
// Each iteration samples candidate parameter vectors around the current centre,
// simulates and scores them, keeps the best one if it is no worse than the
// current centre and then narrows the spread by a fixed factor. Worse
// candidates are never accepted.
package mcmin

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/mcopt/internal/monitoring"
	"github.com/banshee-data/mcopt/internal/timeutil"
)

// Column offsets in a Result.History row, counted past the P parameter
// columns. HistExtra is the number of trailing columns.
const (
	HistScore = iota
	HistIteration
	HistFailed
	HistExtra
)

// Evaluation is the outcome of simulating one parameter vector.
type Evaluation struct {
	Params     []float64
	Score      float64
	Simulated  *mat.Dense
	Deviations *mat.Dense
	Err        error
}

// Failed reports whether the candidate could not be scored.
func (e Evaluation) Failed() bool {
	return e.Err != nil
}

// Request describes one minimization run.
type Request struct {
	Ctr0       []float64
	Sigma0     []float64
	Mins       []float64
	Maxes      []float64
	TrueValues *mat.Dense
	NumIters   int
	NumPts     int
	RedFactor  float64
	Seed       uint64
}

// Validate checks vector lengths, bounds and loop settings.
func (r Request) Validate() error {
	p := len(r.Ctr0)
	if p == 0 {
		return fmt.Errorf("%w: empty ctr0", ErrInvalidRequest)
	}
	if len(r.Sigma0) != p || len(r.Mins) != p || len(r.Maxes) != p {
		return fmt.Errorf("%w: length mismatch: ctr0=%d sigma0=%d mins=%d maxes=%d",
			ErrInvalidRequest, p, len(r.Sigma0), len(r.Mins), len(r.Maxes))
	}
	for j := 0; j < p; j++ {
		if !(r.Mins[j] <= r.Maxes[j]) {
			return fmt.Errorf("%w: bounds[%d] = [%v, %v]", ErrInvalidRequest, j, r.Mins[j], r.Maxes[j])
		}
		if !(r.Ctr0[j] >= r.Mins[j] && r.Ctr0[j] <= r.Maxes[j]) {
			return fmt.Errorf("%w: ctr0[%d] = %v outside [%v, %v]", ErrInvalidRequest, j, r.Ctr0[j], r.Mins[j], r.Maxes[j])
		}
		if !(r.Sigma0[j] >= 0) || math.IsInf(r.Sigma0[j], 0) {
			return fmt.Errorf("%w: sigma0[%d] = %v", ErrInvalidRequest, j, r.Sigma0[j])
		}
	}
	if r.TrueValues == nil || r.TrueValues.IsEmpty() {
		return fmt.Errorf("%w: no experimental data", ErrInvalidRequest)
	}
	if r.NumIters <= 0 {
		return fmt.Errorf("%w: num_iters must be positive, got %d", ErrInvalidRequest, r.NumIters)
	}
	if r.NumPts <= 0 {
		return fmt.Errorf("%w: num_pts must be positive, got %d", ErrInvalidRequest, r.NumPts)
	}
	if !(r.RedFactor > 0 && r.RedFactor < 1) {
		return fmt.Errorf("%w: red_factor must be in (0, 1), got %v", ErrInvalidRequest, r.RedFactor)
	}
	return nil
}

// Result is the outcome of Minimize.
type Result struct {
	// Ctr is the best parameter vector found.
	Ctr       []float64
	BestScore float64
	// Sigma is the spread after the final iteration.
	Sigma []float64
	// MinScores holds the centre's score after each iteration.
	MinScores []float64
	// History has one row per sampled candidate: the parameters followed by
	// score, iteration (1-based) and a failed flag (0 or 1).
	History        *mat.Dense
	BestSimulated  *mat.Dense
	BestDeviations *mat.Dense
	// Elapsed is the wall time of the run as read from the Minimizer's clock.
	Elapsed time.Duration
}

// Minimizer runs Monte Carlo fits with a fixed tracker and observer.
type Minimizer struct {
	tracker  Tracker
	observer Observer
	workers  int
	clock    timeutil.Clock
}

// Option configures a Minimizer.
type Option func(*Minimizer)

// WithObserver replaces the default PositionObserver.
func WithObserver(o Observer) Option {
	return func(m *Minimizer) {
		m.observer = o
	}
}

// WithWorkers caps the number of candidates evaluated at once. Values below
// one select GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(m *Minimizer) {
		m.workers = n
	}
}

// WithClock replaces the system clock used to time runs.
func WithClock(c timeutil.Clock) Option {
	return func(m *Minimizer) {
		m.clock = c
	}
}

// New returns a Minimizer that integrates candidates with tracker.
func New(tracker Tracker, opts ...Option) (*Minimizer, error) {
	if tracker == nil {
		return nil, fmt.Errorf("mcmin: tracker is nil")
	}
	m := &Minimizer{tracker: tracker, observer: PositionObserver{}, clock: timeutil.RealClock{}}
	for _, opt := range opts {
		opt(m)
	}
	if m.observer == nil {
		return nil, fmt.Errorf("mcmin: observer is nil")
	}
	if m.clock == nil {
		return nil, fmt.Errorf("mcmin: clock is nil")
	}
	if m.workers < 1 {
		m.workers = runtime.GOMAXPROCS(0)
	}
	return m, nil
}

// Workers returns the evaluation concurrency limit.
func (m *Minimizer) Workers() int {
	return m.workers
}

// RunTrack integrates, observes and scores one parameter vector against
// trueValues. On failure the returned Evaluation has Score +Inf and Err set,
// and the same error is returned.
func (m *Minimizer) RunTrack(params []float64, trueValues *mat.Dense) (Evaluation, error) {
	ev := Evaluation{Params: slices.Clone(params), Score: math.Inf(1)}

	tr, err := m.tracker.TrackParticle(ev.Params)
	if err == nil {
		err = tr.Validate()
	}
	if err != nil {
		ev.Err = fmt.Errorf("%w: %w", ErrIntegration, err)
		return ev, ev.Err
	}
	sim, err := m.observer.Observe(tr)
	if err != nil {
		ev.Err = fmt.Errorf("%w: %w", ErrObservation, err)
		return ev, ev.Err
	}
	ev.Simulated = sim
	ev.Deviations = FindDeviations(sim, trueValues)

	score, err := Score(ev.Deviations)
	if err != nil {
		ev.Err = err
		return ev, err
	}
	ev.Score = score
	return ev, nil
}

// evaluate scores every row of params. Results are stored by row index, so
// the outcome does not depend on scheduling.
func (m *Minimizer) evaluate(params *mat.Dense, trueValues *mat.Dense) []Evaluation {
	n, _ := params.Dims()
	evals := make([]Evaluation, n)

	var g errgroup.Group
	g.SetLimit(m.workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			ev, err := m.RunTrack(params.RawRowView(i), trueValues)
			if err != nil {
				monitoring.Debugf("[mcmin] candidate %d failed: %v", i, err)
			}
			evals[i] = ev
			return nil
		})
	}
	_ = g.Wait()
	return evals
}

// Minimize runs req.NumIters iterations of sample, evaluate, select and shrink.
// The run is reproducible for a given req.Seed regardless of the worker count.
// Cancelling ctx stops the run between iterations.
//
// When every candidate of an iteration fails, Minimize returns a
// *NoViableCandidateError together with a partial Result: the incumbent, the
// spread and scores of the completed iterations, and the history up to and
// including the failed iteration.
func (m *Minimizer) Minimize(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := m.clock.Now()
	p := len(req.Ctr0)
	src := rand.NewPCG(req.Seed, req.Seed^0x9e3779b97f4a7c15)

	monitoring.Logf("[mcmin] Minimizer started: %d iterations, %d points, red_factor=%g, workers=%d",
		req.NumIters, req.NumPts, req.RedFactor, m.workers)

	best, err := m.RunTrack(req.Ctr0, req.TrueValues)
	if err != nil {
		monitoring.Logf("[mcmin] Initial centre is not scorable: %v", err)
	}

	ctr := slices.Clone(req.Ctr0)
	sigma := slices.Clone(req.Sigma0)
	history := mat.NewDense(req.NumIters*req.NumPts, p+HistExtra, nil)
	minScores := make([]float64, 0, req.NumIters)

	// result snapshots the run after the given number of iterations.
	result := func(iters int) *Result {
		return &Result{
			Ctr:            ctr,
			BestScore:      best.Score,
			Sigma:          sigma,
			MinScores:      minScores,
			History:        history.Slice(0, iters*req.NumPts, 0, p+HistExtra).(*mat.Dense),
			BestSimulated:  best.Simulated,
			BestDeviations: best.Deviations,
			Elapsed:        m.clock.Since(start),
		}
	}

	for iter := 1; iter <= req.NumIters; iter++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("minimize: iteration %d: %w", iter, ctx.Err())
		default:
		}

		params, err := MakeParams(src, ctr, sigma, req.NumPts, req.Mins, req.Maxes)
		if err != nil {
			return nil, fmt.Errorf("minimize: iteration %d: %w", iter, err)
		}
		evals := m.evaluate(params, req.TrueValues)

		bestIdx := -1
		var lastErr error
		for i, ev := range evals {
			row := history.RawRowView((iter-1)*req.NumPts + i)
			copy(row, ev.Params)
			row[p+HistScore] = ev.Score
			row[p+HistIteration] = float64(iter)
			if ev.Failed() {
				row[p+HistFailed] = 1
				lastErr = ev.Err
				continue
			}
			if bestIdx < 0 || ev.Score < evals[bestIdx].Score {
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			monitoring.Logf("[mcmin] Iteration %d/%d: all %d candidates failed", iter, req.NumIters, req.NumPts)
			return result(iter), &NoViableCandidateError{Iteration: iter, Candidates: req.NumPts, LastErr: lastErr}
		}

		if evals[bestIdx].Score <= best.Score {
			best = evals[bestIdx]
			copy(ctr, best.Params)
		}
		minScores = append(minScores, best.Score)
		floats.Scale(req.RedFactor, sigma)

		monitoring.Logf("[mcmin] Iteration %d/%d: best=%.6g ctr=%v sigma=%v", iter, req.NumIters, best.Score, ctr, sigma)
	}

	res := result(req.NumIters)
	monitoring.Logf("[mcmin] Minimizer complete in %v: score=%.6g ctr=%v", res.Elapsed, best.Score, ctr)
	return res, nil
}
