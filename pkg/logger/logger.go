// Package logger provides the small printf-style logging interface
// consumed by the sync engine and its callers.
package logger

import (
	"fmt"
	"io"
	"os"
)

// Logger is implemented by anything the engine can log through.
type Logger interface {
	Info(format string, args ...any)
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// New creates a logger writing to stderr. When quiet is true, Info and
// Debug output is suppressed; errors are always printed.
func New(quiet bool) Logger {
	return &writerLogger{quiet: quiet, out: os.Stderr}
}

// NewWriter creates a logger writing to w. Useful for testing.
func NewWriter(w io.Writer, quiet bool) Logger {
	return &writerLogger{quiet: quiet, out: w}
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return nopLogger{}
}

type writerLogger struct {
	quiet bool
	out   io.Writer
}

func (l *writerLogger) Info(format string, args ...any) {
	if !l.quiet {
		fmt.Fprintf(l.out, format+"\n", args...)
	}
}

func (l *writerLogger) Debug(format string, args ...any) {
	if !l.quiet {
		fmt.Fprintf(l.out, "DEBUG: "+format+"\n", args...)
	}
}

func (l *writerLogger) Error(format string, args ...any) {
	fmt.Fprintf(l.out, "ERROR: "+format+"\n", args...)
}

type nopLogger struct{}

func (nopLogger) Info(format string, args ...any)  {}
func (nopLogger) Debug(format string, args ...any) {}
func (nopLogger) Error(format string, args ...any) {}
