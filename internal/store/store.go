// Package store persists minimizer runs and their sample histories in SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/mcopt/internal/mcmin"
	"github.com/banshee-data/mcopt/internal/timeutil"
	"github.com/banshee-data/mcopt/internal/version"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("fit run not found")

// Run is a persisted minimizer run.
type Run struct {
	RunID      string          `json:"run_id"`
	CreatedAt  int64           `json:"created_at"`
	NumIters   int             `json:"num_iters"`
	NumPts     int             `json:"num_pts"`
	RedFactor  float64         `json:"red_factor"`
	Seed       uint64          `json:"seed"`
	BestScore  float64         `json:"best_score"`
	Ctr        []float64       `json:"ctr"`
	Sigma0     []float64       `json:"sigma0"`
	Sigma      []float64       `json:"sigma"`
	MinScores  []float64       `json:"min_scores"`
	ConfigJSON json.RawMessage `json:"config_json,omitempty"`
	Elapsed    time.Duration   `json:"elapsed_ns"`
	Version    string          `json:"version"`
}

// Sample is one evaluated candidate from a run's history.
type Sample struct {
	Iteration int
	Index     int
	Params    []float64
	Score     float64
	Failed    bool
}

// Store wraps a SQLite database holding fit runs.
type Store struct {
	db    *sql.DB
	clock timeutil.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to stamp new runs.
func WithClock(c timeutil.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// Open opens (or creates) the database at path and applies migrations.
// Use ":memory:" for a throwaway store.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases alive across calls
	// and serialises writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, clock: timeutil.RealClock{}}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunFromResult builds a Run from a minimizer request and its result, tagged
// with the running build's version.
func RunFromResult(req mcmin.Request, res *mcmin.Result) *Run {
	return &Run{
		NumIters:  req.NumIters,
		NumPts:    req.NumPts,
		RedFactor: req.RedFactor,
		Seed:      req.Seed,
		BestScore: res.BestScore,
		Ctr:       res.Ctr,
		Sigma0:    req.Sigma0,
		Sigma:     res.Sigma,
		MinScores: res.MinScores,
		Elapsed:   res.Elapsed,
		Version:   version.String(),
	}
}

// SaveRun inserts run. A missing RunID is filled with a new UUID and a zero
// CreatedAt with the store clock's current time.
func (s *Store) SaveRun(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = s.clock.Now().UnixNano()
	}

	ctr, err := marshalFloats(run.Ctr)
	if err != nil {
		return fmt.Errorf("encode ctr: %w", err)
	}
	sigma0, err := marshalFloats(run.Sigma0)
	if err != nil {
		return fmt.Errorf("encode sigma0: %w", err)
	}
	sigma, err := marshalFloats(run.Sigma)
	if err != nil {
		return fmt.Errorf("encode sigma: %w", err)
	}
	minScores, err := marshalFloats(run.MinScores)
	if err != nil {
		return fmt.Errorf("encode min_scores: %w", err)
	}
	var cfg interface{}
	if len(run.ConfigJSON) > 0 {
		cfg = string(run.ConfigJSON)
	}

	_, err = s.db.Exec(`
		INSERT INTO fit_runs (
			run_id, created_at, num_iters, num_pts, red_factor, seed,
			best_score, ctr_json, sigma0_json, sigma_json, min_scores_json, config_json,
			elapsed_ns, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.CreatedAt, run.NumIters, run.NumPts, run.RedFactor, int64(run.Seed),
		finiteOrNull(run.BestScore), ctr, sigma0, sigma, minScores, cfg,
		int64(run.Elapsed), run.Version,
	)
	if err != nil {
		return fmt.Errorf("insert fit run: %w", err)
	}
	return nil
}

// SaveSamples stores every row of a minimizer history under runID in a
// single transaction.
func (s *Store) SaveSamples(runID string, history *mat.Dense) error {
	if history == nil || history.IsEmpty() {
		return nil
	}
	rows, cols := history.Dims()
	p := cols - mcmin.HistExtra
	if p < 1 {
		return fmt.Errorf("history has %d columns, want at least %d", cols, mcmin.HistExtra+1)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO fit_samples (run_id, iteration, idx, params_json, score, failed)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare sample insert: %w", err)
	}
	defer stmt.Close()

	perIter := map[int]int{}
	for i := 0; i < rows; i++ {
		row := history.RawRowView(i)
		iter := int(row[p+mcmin.HistIteration])
		idx := perIter[iter]
		perIter[iter]++

		params, err := marshalFloats(row[:p])
		if err != nil {
			return fmt.Errorf("encode sample %d: %w", i, err)
		}
		if _, err := stmt.Exec(runID, iter, idx, params, finiteOrNull(row[p+mcmin.HistScore]), row[p+mcmin.HistFailed] != 0); err != nil {
			return fmt.Errorf("insert sample %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// GetRun returns the run with the given id.
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, created_at, num_iters, num_pts, red_factor, seed,
		       best_score, ctr_json, sigma0_json, sigma_json, min_scores_json, config_json,
		       elapsed_ns, version
		FROM fit_runs
		WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return run, err
}

// ListRuns returns every run, newest first.
func (s *Store) ListRuns() ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, created_at, num_iters, num_pts, red_factor, seed,
		       best_score, ctr_json, sigma0_json, sigma_json, min_scores_json, config_json,
		       elapsed_ns, version
		FROM fit_runs
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query fit runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Samples returns the history of a run ordered by iteration and index.
func (s *Store) Samples(runID string) ([]Sample, error) {
	rows, err := s.db.Query(`
		SELECT iteration, idx, params_json, score, failed
		FROM fit_samples
		WHERE run_id = ?
		ORDER BY iteration, idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("query fit samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var (
			smp    Sample
			params string
			score  sql.NullFloat64
		)
		if err := rows.Scan(&smp.Iteration, &smp.Index, &params, &score, &smp.Failed); err != nil {
			return nil, fmt.Errorf("scan fit sample: %w", err)
		}
		if smp.Params, err = unmarshalFloats(params); err != nil {
			return nil, fmt.Errorf("decode sample params: %w", err)
		}
		smp.Score = nullToInf(score)
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}

// DeleteRun removes a run and its samples.
func (s *Store) DeleteRun(runID string) error {
	res, err := s.db.Exec(`DELETE FROM fit_runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete fit run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run                           Run
		seed                          int64
		best                          sql.NullFloat64
		ctr, sigma0, sigma, minScores string
		cfg                           sql.NullString
		elapsed                       int64
	)
	err := row.Scan(&run.RunID, &run.CreatedAt, &run.NumIters, &run.NumPts, &run.RedFactor, &seed,
		&best, &ctr, &sigma0, &sigma, &minScores, &cfg, &elapsed, &run.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan fit run: %w", err)
	}
	run.Seed = uint64(seed)
	run.Elapsed = time.Duration(elapsed)
	run.BestScore = nullToInf(best)
	for _, f := range []struct {
		src string
		dst *[]float64
	}{
		{ctr, &run.Ctr},
		{sigma0, &run.Sigma0},
		{sigma, &run.Sigma},
		{minScores, &run.MinScores},
	} {
		v, err := unmarshalFloats(f.src)
		if err != nil {
			return nil, fmt.Errorf("decode fit run %s: %w", run.RunID, err)
		}
		*f.dst = v
	}
	if cfg.Valid {
		run.ConfigJSON = json.RawMessage(cfg.String)
	}
	return &run, nil
}

// marshalFloats encodes v as a JSON array. Non-finite values are rejected by
// encoding/json, so they are written as null.
func marshalFloats(v []float64) (string, error) {
	out := make([]*float64, len(v))
	for i := range v {
		if !math.IsNaN(v[i]) && !math.IsInf(v[i], 0) {
			out[i] = &v[i]
		}
	}
	b, err := json.Marshal(out)
	return string(b), err
}

// unmarshalFloats is the inverse of marshalFloats; null decodes as NaN.
func unmarshalFloats(s string) ([]float64, error) {
	var raw []*float64
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, err
	}
	out := make([]float64, len(raw))
	for i, p := range raw {
		if p == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *p
	}
	return out, nil
}

func finiteOrNull(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func nullToInf(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.Inf(1)
	}
	return v.Float64
}
