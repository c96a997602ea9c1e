// Package fatal centralizes the "structural violation" disposition shared
// by the backing store, swap space and node engine (spec §7: corrupted
// bytes, missing (id,version), refcount/invariant violations are never
// retried — they abort the process that observed them).
package fatal

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Error wraps an unrecoverable structural-invariant violation. It is never
// returned to a caller; it is always the payload of a panic.
type Error struct {
	cause error
}

func (e *Error) Error() string { return e.cause.Error() }

func (e *Error) Unwrap() error { return e.cause }

// Abort logs the cause (if a logger is supplied) and panics with a
// *fatal.Error wrapping it. Callers at the boundary of a public API may
// recover and re-panic, but must never swallow a fatal abort.
func Abort(log *zap.Logger, cause error) {
	if log != nil {
		log.Error("fatal engine invariant violated", zap.Error(cause))
	}

	panic(&Error{cause: cause})
}

// Abortf is Abort with a formatted cause.
func Abortf(log *zap.Logger, format string, args ...any) {
	Abort(log, errors.Errorf(format, args...))
}

// Wrap wraps cause with context and aborts.
func Wrap(log *zap.Logger, cause error, context string) {
	Abort(log, errors.Wrap(cause, context))
}
