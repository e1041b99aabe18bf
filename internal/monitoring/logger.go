// Package monitoring holds the process-wide diagnostic logging hook shared
// by the scene optimization components. Frame-path code logs through Logf so
// hosts (and tests) can redirect or silence output without touching the
// components themselves.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger. Pool capacity warnings, tracking phase
// transitions and profiler signals all route through it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger,
// which silences all component diagnostics.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
