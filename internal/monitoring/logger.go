// Package monitoring holds the diagnostic logger shared by the analysis
// packages. Library code logs through Logf so that the CLI, the HTTP server
// and tests can redirect or silence it.
package monitoring

import (
	"log"
	"time"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Stage logs the start of a named pipeline stage and returns a function that
// logs its completion with the elapsed time. Typical use:
//
//	defer monitoring.Stage("mem")()
func Stage(name string) func() {
	start := time.Now()
	Logf("[%s] start", name)
	return func() {
		Logf("[%s] done in %v", name, time.Since(start).Round(time.Millisecond))
	}
}
