package message

import "errors"

// Message errors.
var (
	// ErrTruncated is returned when a datagram or frame ends before a
	// complete message could be decoded.
	ErrTruncated = errors.New("message: truncated")

	// ErrInvalidVersion is returned when the CoAP version field is not 1.
	ErrInvalidVersion = errors.New("message: invalid version")

	// ErrInvalidTokenLength is returned when the token length nibble names
	// a length outside 0-8. A token that runs past the end of the message
	// yields ErrTruncated instead.
	ErrInvalidTokenLength = errors.New("message: invalid token length")

	// ErrInvalidOption is returned when an option's delta or length uses a
	// reserved extended-value encoding (15).
	ErrInvalidOption = errors.New("message: invalid option encoding")

	// ErrOptionOutOfOrder is returned when options are not encoded in
	// non-decreasing option-number order.
	ErrOptionOutOfOrder = errors.New("message: option out of order")

	// ErrMessageTooLarge is returned when an encoded message would exceed
	// the configured maximum message size.
	ErrMessageTooLarge = errors.New("message: too large")

	// ErrUnknownCritical is returned when a message carries a critical
	// option this codec does not recognize.
	ErrUnknownCritical = errors.New("message: unrecognized critical option")
)
