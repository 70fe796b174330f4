package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/mcopt/internal/mcmin"
	"github.com/banshee-data/mcopt/internal/monitoring"
)

const maxNameLen = 128

// OutputDir is a directory that receives report artefacts. File names are
// sanitized, and a path is refused if it resolves outside the directory.
type OutputDir struct {
	root string // canonical, symlinks resolved
}

// NewOutputDir creates dir if needed.
func NewOutputDir(dir string) (*OutputDir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}
	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir symlinks: %w", err)
	}
	return &OutputDir{root: root}, nil
}

// Root returns the canonical directory path.
func (o *OutputDir) Root() string {
	return o.root
}

// Path returns the location for an artefact called name. Characters outside
// [A-Za-z0-9._-] are replaced, so name cannot introduce subdirectories. An
// existing symlink that points outside the directory is rejected.
func (o *OutputDir) Path(name string) (string, error) {
	p := filepath.Join(o.root, SanitizeName(name))
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	rel, err := filepath.Rel(o.root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %s escapes %s", name, o.root)
	}
	return p, nil
}

// SanitizeName maps s to a safe file name. Runs of disallowed characters
// become a single underscore, leading and trailing dots and underscores are
// trimmed, and an empty result becomes "unknown".
func SanitizeName(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxNameLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}

// WriteRun writes the artefacts for a minimizer run under names prefixed
// with runID: the convergence plot, the histogram of the last iteration's
// scores and an HTML page with both. It returns the written paths.
func (o *OutputDir) WriteRun(runID string, res *mcmin.Result, nbins int) ([]string, error) {
	if res == nil {
		return nil, fmt.Errorf("write run %s: nil result", runID)
	}
	summary := SummarizeScores(res.History, len(res.MinScores), nbins)

	var written []string
	conv, err := o.Path(runID + "_convergence.png")
	if err != nil {
		return written, err
	}
	if err := PlotConvergence(res.MinScores, conv); err != nil {
		return written, err
	}
	written = append(written, conv)

	if summary.Count > 0 {
		hist, err := o.Path(runID + "_scores.png")
		if err != nil {
			return written, err
		}
		if err := PlotScoreHistogram(summary, hist); err != nil {
			return written, err
		}
		written = append(written, hist)
	}

	page, err := o.Path(runID + ".html")
	if err != nil {
		return written, err
	}
	var buf bytes.Buffer
	if err := WriteRunPage(&buf, res.MinScores, summary); err != nil {
		return written, fmt.Errorf("render run page: %w", err)
	}
	if err := os.WriteFile(page, buf.Bytes(), 0o644); err != nil {
		return written, fmt.Errorf("write run page: %w", err)
	}
	written = append(written, page)

	monitoring.Logf("[report] Wrote %d artefacts for run %s to %s", len(written), runID, o.root)
	return written, nil
}
