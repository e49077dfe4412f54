package errors

import (
	"errors"
	"fmt"
)

// Authentication failures are connection fatal: the session is closed, no retry.
var (
	ErrMissingCredential       = fmt.Errorf("missing bearer credential")
	ErrInvalidToken            = fmt.Errorf("invalid token")
	ErrExpired                 = fmt.Errorf("token expired")
	ErrAudienceMismatch        = fmt.Errorf("token audience mismatch")
	ErrSessionNotAuthenticated = fmt.Errorf("session not authenticated")
	ErrSessionClosed           = fmt.Errorf("session closed")
)

// ErrDenied is frame fatal: the frame is dropped, the session stays open.
var ErrDenied = fmt.Errorf("access denied")

var (
	ErrPersistenceSubmitFailed = fmt.Errorf("persistence submit failed")
	ErrQueueFull               = fmt.Errorf("persistence queue full")
	ErrPipelineClosed          = fmt.Errorf("persistence pipeline closed")
)

var (
	ErrStoreUnavailable = fmt.Errorf("store unavailable")
	ErrPermanent        = fmt.Errorf("permanent store failure")
)

var (
	ErrChatNotFound       = fmt.Errorf("chat not found")
	ErrNotMember          = fmt.Errorf("user is not a member of the chat")
	ErrInvalidDestination = fmt.Errorf("invalid destination")
	ErrInvalidPayload     = fmt.Errorf("invalid payload")
	ErrRateLimited        = fmt.Errorf("rate limited")
	ErrNoSubscriber       = fmt.Errorf("no subscriber for destination")
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrMalformedFrame     = fmt.Errorf("malformed frame")
	ErrSlowConsumer       = fmt.Errorf("outbound buffer full")
)

var authErrors = []error{
	ErrMissingCredential,
	ErrInvalidToken,
	ErrExpired,
	ErrAudienceMismatch,
	ErrSessionNotAuthenticated,
	ErrSessionClosed,
}

// IsAuthError reports whether err must close the connection.
func IsAuthError(err error) bool {
	for _, target := range authErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether a store error is worth another attempt.
// Everything is retryable unless marked permanent or caused by bad input.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrPermanent) && !errors.Is(err, ErrInvalidPayload)
}

// Permanent marks err as not retryable.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Is lets callers branch on the taxonomy without importing the standard errors package.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
