// Package logx is the package-level diagnostic logger shared by the
// engine, registry, and admin HTTP surface: a single swappable
// Printf-style sink so embedding applications and tests can redirect or
// silence it without plumbing a logger through every constructor. Engine
// logs every error it puts on the background error channel (including
// transport faults) and a shutdown that outran its grace period,
// registry logs how many outstanding entries a Drain discarded, and
// adminhttp logs each command an operator submits through the admin HTTP
// surface and, separately, whether the diagnostic recorder failed to
// persist it. None of those call sites want a logger reference of their
// own, so they all go through this one var.
package logx

import "log"

// Logf is the shared diagnostic logger. Defaults to log.Printf.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces Logf. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
