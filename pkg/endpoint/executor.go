package endpoint

import "sync"

// Executor runs protocol-stage tasks (spec.md Section 5: all Exchange,
// store and timer mutation happens on one logical protocol stage). The
// interface mirrors the `GoPoolFunc = func(func()) error` abstraction
// used for worker-pool submission in plgd-dev's CoAP client: Submit
// enqueues a task and returns once it is queued, not once it runs.
type Executor interface {
	// Submit enqueues fn to run on the protocol stage. Returns an error
	// if the executor has been stopped.
	Submit(fn func()) error
	// Stop drains queued tasks then stops accepting new ones.
	Stop()
}

// SerialExecutor is the default single-goroutine Executor (spec.md
// Section 5: "single-threaded default, multi-threaded in production").
// Tasks run strictly in submission order, giving Exchange state
// transitions the total ordering the concurrency model requires.
type SerialExecutor struct {
	tasks chan func()
	done  chan struct{}

	mu      sync.Mutex
	stopped bool
}

// NewSerialExecutor starts a SerialExecutor with the given queue depth.
// A depth of 0 makes Submit synchronous with the consumer goroutine
// picking up each task immediately.
func NewSerialExecutor(queueDepth int) *SerialExecutor {
	e := &SerialExecutor{
		tasks: make(chan func(), queueDepth),
		done:  make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *SerialExecutor) run() {
	for fn := range e.tasks {
		fn()
	}
	close(e.done)
}

// Submit implements Executor.
func (e *SerialExecutor) Submit(fn func()) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrExecutorStopped
	}
	e.mu.Unlock()

	e.tasks <- fn
	return nil
}

// Stop implements Executor: it closes the task queue and waits for the
// consumer goroutine to drain whatever was already queued.
func (e *SerialExecutor) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()

	close(e.tasks)
	<-e.done
}

// InlineExecutor runs every task synchronously on the caller's
// goroutine. Useful for tests that want deterministic ordering without a
// background goroutine.
type InlineExecutor struct{}

func (InlineExecutor) Submit(fn func()) error {
	fn()
	return nil
}

func (InlineExecutor) Stop() {}
