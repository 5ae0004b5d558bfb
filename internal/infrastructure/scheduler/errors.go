package scheduler

import "errors"

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ---------------------------------------------------------------------------
	// Run Gate Errors
	// ---------------------------------------------------------------------------

	// ErrGateWaitCanceled is returned when a caller stops waiting for the run gate
	ErrGateWaitCanceled = errors.New("gave up waiting for the sync run gate")

	// ErrGateUnavailable is returned when the distributed gate backend fails
	ErrGateUnavailable = errors.New("sync run gate unavailable")
)
