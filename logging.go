package controllino

import "github.com/Argon343/controllino/logx"

// SetLogger replaces the diagnostic logger used by the engine, registry,
// and admin HTTP surface. Passing nil silences it. See package logx.
func SetLogger(f func(format string, v ...interface{})) {
	logx.SetLogger(f)
}
