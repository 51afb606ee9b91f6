package payments

import "errors"

var (
	// ErrInvalidSignature indicates webhook signature verification failed.
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
	// ErrUnavailable indicates a transient transport failure reaching the
	// gateway; the caller may retry.
	ErrUnavailable = errors.New("payments: gateway unavailable")
	// ErrSessionNotFound indicates the gateway does not know the session id.
	ErrSessionNotFound = errors.New("payments: checkout session not found")
)
