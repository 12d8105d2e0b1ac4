// Package logging is the ambient logging seam. A client library does
// not own the process's log output, so it exposes the smallest
// interface its internals need (debug traces, warnings) and defaults to
// a no-op, mirroring the optional scm.Trace hook the teacher's storage
// package checks for before emitting anything (storage/partition.go).
package logging

// Logger is the minimal surface the core calls into. Debugf carries
// swallowed/benign conditions ("no such key, skipping"); Warnf carries
// conditions the caller should know about but that do not fail the
// call (dropped extra columns, ignored column_types).
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

// Nop discards everything; it is the default when no Logger is supplied.
type Nop struct{}

func (Nop) Debugf(string, ...any) {}
func (Nop) Warnf(string, ...any)  {}

// OrNop returns l, or Nop{} if l is nil, so callers never need a nil
// check before logging.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop{}
	}
	return l
}
