package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrConfig            = errors.New("invalid configuration")
	ErrTransientNetwork  = errors.New("transient network error")
	ErrPermanentAPI      = errors.New("permanent api error")
	ErrAuth              = errors.New("authentication failed")
	ErrDataValidation    = errors.New("data validation failed")
	ErrStaleData         = errors.New("stale data")
	ErrInvalidTransition = errors.New("invalid order state transition")
	ErrReconcileMismatch = errors.New("reconciliation mismatch")
	ErrFatalInternal     = errors.New("fatal internal error")
	ErrLockHeld          = errors.New("lock already held")
)
