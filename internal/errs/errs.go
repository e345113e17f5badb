// Package errs defines the closed error taxonomy used across the
// repository, so callers can switch on a Kind instead of matching strings.
package errs

import "errors"

// Kind classifies an error for the purposes of the caller-facing surface
// (HTTP status, WebSocket close code, log severity).
type Kind string

const (
	// Validation marks malformed input: bad JSON, a missing required
	// field. Never crashes the process.
	Validation Kind = "validation"
	// Unauthorized marks an authentication or authorization failure.
	Unauthorized Kind = "unauthorized"
	// NotFound marks a lookup that found nothing, distinct from a general
	// storage error.
	NotFound Kind = "not_found"
	// Upstream marks a failure in an external collaborator (webhook POST,
	// subprocess, router API) that the feature degrades around.
	Upstream Kind = "upstream"
	// Storage marks a persistent (non-retryable) storage failure.
	Storage Kind = "storage"
	// Internal marks anything else — a bug or an unexpected condition.
	Internal Kind = "internal"
)

// Error wraps a Kind and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an *Error of the given kind with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err (or anything it wraps) is an *Error of kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the Kind of err if it (or something it wraps) is an
// *Error, or Internal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
