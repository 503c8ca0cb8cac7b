package errs

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict reports a write that lost a race or violates uniqueness.
	ErrConflict        = errors.New("conflict")
	ErrNotConfigured   = errors.New("not configured")
	ErrResetNotAllowed = errors.New("resetting children is not allowed")
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrUnauthorized    = errors.New("unauthorized")
)
