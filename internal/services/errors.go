package services

import "errors"

// Error taxonomy. Every backend error is converted to one of these at the
// comment-store/vote-engine boundary; the orchestrator never sees a raw
// backend error.
var (
	// ErrBackendUnavailable: network or backend down. Surfaced as "try
	// again"; never auto-retried except the one session-refresh retry in
	// the comment store.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrPermissionDenied: ownership or row-level authorization check
	// failed. Surfaced, not retried.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound: the target comment vanished. Surfaced; callers refresh
	// the thread.
	ErrNotFound = errors.New("not found")

	// ErrValidation: rejected client-side before any backend call.
	ErrValidation = errors.New("validation failed")

	// ErrTimeout: the client-side bound expired. The original call's
	// eventual server-side outcome is not tracked; retrying is safe
	// because writes key on content identity.
	ErrTimeout = errors.New("operation timed out")
)

// Retryable reports whether the user should be offered a manual retry.
func Retryable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable) || errors.Is(err, ErrTimeout)
}
