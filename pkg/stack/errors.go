package stack

import "errors"

var (
	// ErrResourceTooLarge is returned when a blockwise-reassembled body
	// would exceed Config.MaxResourceBodySize (spec.md Section 7.6).
	ErrResourceTooLarge = errors.New("stack: reassembled body exceeds max resource body size")

	// ErrIncompleteBlockSequence is returned when inbound blocks arrive
	// out of the expected order (spec.md Section 7.6, 4.08).
	ErrIncompleteBlockSequence = errors.New("stack: inconsistent blockwise sequence")

	// ErrNoObservation is returned by CancelObservation when no matching
	// observation is registered for the token.
	ErrNoObservation = errors.New("stack: no observation registered for token")
)
