package integration

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Integration Errors
// ---------------------------------------------------------------------------

var (
	// Remote API errors. Transport and logical errors are both retryable.
	ErrRemoteTransport     = errors.New("integration: remote transport failure")
	ErrRemoteLogical       = errors.New("integration: remote application error")
	ErrRemoteInvalidReply  = errors.New("integration: invalid remote response")
	ErrTokenExpired        = errors.New("integration: remote access token expired")
	ErrTokenUnavailable    = errors.New("integration: remote access token unavailable")
	ErrPageSizeTooLarge    = errors.New("integration: remote page size too large")
	ErrFetchExhausted      = errors.New("integration: remote fetch retries exhausted")
	ErrRateLimiterCanceled = errors.New("integration: rate limiter wait canceled")

	// Persistence errors are never retried and abort the enclosing run.
	ErrPersistence = errors.New("integration: persistence failure")

	// Sync errors
	ErrInvalidSyncOptions = errors.New("integration: invalid sync options")
	ErrEmptyPage          = errors.New("integration: remote returned an empty page")
	ErrOrderNotFound      = errors.New("integration: order not found")
)

// Reserved remote application codes.
const (
	CodeSuccess          = 0
	CodePageSizeTooLarge = 1001
	CodeTokenExpired     = 2001003
)

// RemoteError is a nonzero application code returned by the remote API.
type RemoteError struct {
	Code int
	Msg  string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("integration: remote code %d: %s", e.Code, e.Msg)
}

// Unwrap maps reserved codes onto their sentinels so callers can use errors.Is.
func (e *RemoteError) Unwrap() error {
	switch e.Code {
	case CodePageSizeTooLarge:
		return ErrPageSizeTooLarge
	case CodeTokenExpired:
		return ErrTokenExpired
	default:
		return ErrRemoteLogical
	}
}

// IsRetryable reports whether err belongs to the retryable part of the
// taxonomy: transport failures, nonzero remote codes, undecodable replies and
// token failures. Persistence errors, limiter cancellation and local request
// building errors are not retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPersistence) || errors.Is(err, ErrRateLimiterCanceled) {
		return false
	}
	return errors.Is(err, ErrRemoteTransport) ||
		errors.Is(err, ErrRemoteLogical) ||
		errors.Is(err, ErrRemoteInvalidReply) ||
		errors.Is(err, ErrPageSizeTooLarge) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenUnavailable)
}

// WrapPersistence tags a storage failure as a PersistenceError.
func WrapPersistence(err error) error {
	if err == nil || errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}
