// Package monitoring holds the process-wide diagnostic log hooks used by the
// simulation and minimizer packages.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf receives progress messages such as per-iteration minimizer summaries.
// It defaults to log.Printf; use SetLogger to redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

var debug atomic.Bool

// SetLogger replaces Logf. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetDebug enables or disables Debugf output.
func SetDebug(on bool) {
	debug.Store(on)
}

// DebugEnabled reports whether Debugf forwards to Logf.
func DebugEnabled() bool {
	return debug.Load()
}

// Debugf forwards to Logf when debug output is enabled. It is used for
// per-candidate traces that are too noisy for normal runs.
func Debugf(format string, v ...interface{}) {
	if !debug.Load() {
		return
	}
	Logf(format, v...)
}
