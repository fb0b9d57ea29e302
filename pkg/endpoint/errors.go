package endpoint

import "errors"

var (
	// ErrAlreadyStarted is returned by Start when the Endpoint is already
	// running or in the middle of starting.
	ErrAlreadyStarted = errors.New("endpoint: already started")

	// ErrNotStarted is returned by Stop when the Endpoint is not running.
	ErrNotStarted = errors.New("endpoint: not started")

	// ErrDestroyed is returned by Destroy on an Endpoint that has already
	// been destroyed.
	ErrDestroyed = errors.New("endpoint: destroyed")

	// ErrNotRunning is returned by send/receive operations attempted
	// while the Endpoint is not started.
	ErrNotRunning = errors.New("endpoint: not running")

	// ErrExecutorImmutableWhileRunning is returned by SetExecutor while
	// the Endpoint is started. spec.md Section 9's open question ("must
	// set_executor shut down the previous executor?") is resolved by
	// forbidding replacement while running, rather than leaving the
	// previous executor's fate ambiguous.
	ErrExecutorImmutableWhileRunning = errors.New("endpoint: cannot replace executor while started")

	// ErrInvalidDestination is the programming-error case for a send
	// operation with no destination address (spec.md Section 7.1).
	ErrInvalidDestination = errors.New("endpoint: destination address not set")

	// ErrInvalidSource is the programming-error case for an inbound frame
	// with no source address or port (spec.md Section 7.1).
	ErrInvalidSource = errors.New("endpoint: inbound frame missing source address or port")

	// ErrExecutorStopped is returned by SerialExecutor.Submit once Stop
	// has been called.
	ErrExecutorStopped = errors.New("endpoint: executor stopped")
)
