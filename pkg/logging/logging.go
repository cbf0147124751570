// Package logging provides the framework's structured logger, bridging to
// github.com/go-logr/logr per SPEC_FULL.md's AMBIENT STACK section (the
// teacher's own logging choice). Logger implements internal/events.
// ErrorLogger so it can be installed directly as the dispatcher's panic and
// exception sink (spec.md §4.C "exceptions are logged and do not stop
// delivery").
package logging

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
)

// Logger wraps a logr.Logger with a printf-style call shape; the event
// dispatcher uses it as its events.ErrorLogger.
type Logger struct {
	base logr.Logger
}

// New builds a Logger writing formatted text lines to os.Stderr, named for
// the top-level component using it (e.g. "framework").
func New(name string) *Logger {
	base := funcr.New(func(prefix, args string) {
		if prefix == "" {
			fmt.Fprintln(os.Stderr, args)
			return
		}
		fmt.Fprintln(os.Stderr, prefix+": "+args)
	}, funcr.Options{})
	return &Logger{base: base.WithName(name)}
}

// FromLogr wraps an already-configured logr.Logger, e.g. one backed by a
// different sink in production.
func FromLogr(l logr.Logger) *Logger {
	return &Logger{base: l}
}

// Error implements internal/events.ErrorLogger: subsystem names the
// reporting component, err may be nil (a recovered panic with no error
// value), messageFmt/args are formatted the same way as fmt.Sprintf.
func (l *Logger) Error(subsystem string, err error, messageFmt string, args ...any) {
	l.base.WithName(subsystem).Error(err, fmt.Sprintf(messageFmt, args...))
}

// Info logs an informational line under subsystem.
func (l *Logger) Info(subsystem, messageFmt string, args ...any) {
	l.base.WithName(subsystem).Info(fmt.Sprintf(messageFmt, args...))
}
