package roadmap

import (
	"errors"

	"github.com/colonyops/roadmap/internal/core/kv"
)

// ErrorKind classifies failures returned by item operations.
// Kinds are string codes so they serialize naturally.
type ErrorKind string

const (
	// KindInvalidInput indicates malformed or missing input.
	KindInvalidInput ErrorKind = "INVALID_INPUT"

	// KindUnauthorized indicates a missing or unverifiable agent identity.
	KindUnauthorized ErrorKind = "UNAUTHORIZED"

	// KindNotFound indicates the item id is not in the current collection.
	KindNotFound ErrorKind = "NOT_FOUND"

	// KindConflict indicates the collection changed between load and save.
	// The caller should reload and retry.
	KindConflict ErrorKind = "CONFLICT"

	// KindFetchFailed indicates an external call failed or returned non-success.
	KindFetchFailed ErrorKind = "EXTERNAL_FETCH_FAILED"

	// KindInternal covers everything else.
	KindInternal ErrorKind = "INTERNAL_ERROR"
)

// Error is a categorized failure with a stable, user-facing message.
// The wrapped cause is kept for logs and errors.Is/As but never printed.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Invalid returns an INVALID_INPUT error.
func Invalid(msg string) error {
	return newError(KindInvalidInput, msg, nil)
}

// ErrUnauthorized is returned when no agent identity could be verified.
var ErrUnauthorized = newError(KindUnauthorized, "not authenticated: pass a registered agent address", nil)

// ErrItemNotFound is returned when the id does not exist.
var ErrItemNotFound = newError(KindNotFound, "item not found", nil)

// Conflict wraps a store conflict as a retryable error.
func Conflict(cause error) error {
	return newError(KindConflict, "roadmap changed concurrently, reload and retry", cause)
}

// Internal wraps an unexpected failure behind a stable message.
func Internal(msg string, cause error) error {
	return newError(KindInternal, msg, cause)
}

// KindOf classifies err. Store conflicts are reported as KindConflict even
// when they were not wrapped by Conflict.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	if errors.Is(err, kv.ErrConflict) {
		return KindConflict
	}
	return KindInternal
}

// IsRetryable reports whether the caller should reload and try again.
func IsRetryable(err error) bool {
	return KindOf(err) == KindConflict
}
