// Package monitoring carries the process-wide diagnostic logger.
// Components log through Logf with a bracketed name, so output stays
// greppable per subsystem and tests can mute or capture it wholesale.
package monitoring

import (
	"fmt"
	"log"
)

// Logf is the package-level diagnostic logger. It defaults to
// log.Printf but may be replaced by SetLogger. Replace it before
// starting goroutines that log.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Prefixed returns a logf function that prepends "[component] " to
// every line and forwards to the current package logger.
func Prefixed(component string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		Logf("[%s] %s", component, fmt.Sprintf(format, v...))
	}
}
