package exchange

import "errors"

// Errors returned by Store and the Matcher implementations.
var (
	// ErrDuplicateMID is returned when registering a KeyMID that already
	// names a different, live Exchange.
	ErrDuplicateMID = errors.New("exchange: a different exchange is already registered for this message ID")

	// ErrDuplicateURI is returned when registering a KeyURI that already
	// names a different, live Exchange.
	ErrDuplicateURI = errors.New("exchange: a different exchange is already registered for this observe URI")

	// ErrRejectedDuplicateToken is REJECTED_DUPLICATE_TOKEN from spec.md
	// Section 3: the token is already held by a different live Exchange.
	ErrRejectedDuplicateToken = errors.New("exchange: REJECTED_DUPLICATE_TOKEN: token already in use by another exchange")

	// ErrExchangeNotFound is returned when a lookup key has no registered
	// Exchange.
	ErrExchangeNotFound = errors.New("exchange: no exchange registered for this key")

	// ErrCorrelationMismatch is returned when a response's correlation
	// context does not match the context established for its request,
	// defeating cross-session injection.
	ErrCorrelationMismatch = errors.New("exchange: response correlation context does not match the request's")

	// ErrUnsupportedOperation is returned by TcpMatcher for operations
	// that have no meaning over a stream connector.
	ErrUnsupportedOperation = errors.New("exchange: operation not supported by this matcher")
)
