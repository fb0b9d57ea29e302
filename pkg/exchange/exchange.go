package exchange

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/backkem/coap/pkg/connector"
	"github.com/backkem/coap/pkg/message"
)

// Exchange is the unit of correlation between one request and the set of
// responses (and ACK/RST) it elicits (spec.md Section 3). It is passed by
// reference; the protocol stack layers attach their own per-layer state to
// ReliabilityState, BlockwiseState and ObserveState rather than mutating
// each other's fields.
type Exchange struct {
	// Origin indicates whether this endpoint originated the request.
	Origin Origin

	// CreatedAt is when the Matcher created this Exchange.
	CreatedAt time.Time

	// RemoteAddr is the peer this exchange correlates with.
	RemoteAddr net.Addr

	// CustomExecutor marks that responses on this exchange must run on a
	// caller-supplied executor rather than the default protocol stage
	// (spec.md Section 7).
	CustomExecutor bool

	// ReliabilityState, BlockwiseState and ObserveState hold whatever a
	// stack layer needs to remember between hook calls for this exchange.
	// Each layer owns and type-asserts only its own field.
	ReliabilityState any
	BlockwiseState   any
	ObserveState     any

	mu       sync.Mutex
	request  *message.Request
	response *message.Response

	canceled  bool
	completed bool

	onComplete []func(*Exchange)

	midKey   *KeyMID
	tokenKey *KeyToken
	uriKey   *KeyURI

	ctxMu  sync.Mutex
	ctx    connector.CorrelationContext
	ctxSet bool
	ctxCh  chan struct{}
}

// NewExchange creates an Exchange for the given origin and peer. Matchers
// call this; callers assembling requests should go through a Matcher's
// SendRequest/ReceiveRequest instead of constructing an Exchange directly.
func NewExchange(origin Origin, remote net.Addr) *Exchange {
	return &Exchange{
		Origin:     origin,
		CreatedAt:  time.Now(),
		RemoteAddr: remote,
		ctxCh:      make(chan struct{}),
	}
}

// SetRequest stores the exchange's current request.
func (e *Exchange) SetRequest(req *message.Request) {
	e.mu.Lock()
	e.request = req
	e.mu.Unlock()
}

// Request returns the exchange's current request, or nil.
func (e *Exchange) Request() *message.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.request
}

// SetResponse stores the exchange's current response.
func (e *Exchange) SetResponse(resp *message.Response) {
	e.mu.Lock()
	e.response = resp
	e.mu.Unlock()
}

// Response returns the exchange's current response, or nil.
func (e *Exchange) Response() *message.Response {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.response
}

// SetContext records the correlation context the transport established for
// this exchange (e.g. a DTLS/TLS connection identity), fulfilling the
// one-shot future any concurrent WaitContext callers are blocked on.
func (e *Exchange) SetContext(ctx connector.CorrelationContext) {
	e.ctxMu.Lock()
	defer e.ctxMu.Unlock()
	if e.ctxSet {
		return
	}
	e.ctx = ctx
	e.ctxSet = true
	close(e.ctxCh)
}

// Context returns the established correlation context, if any.
func (e *Exchange) Context() (connector.CorrelationContext, bool) {
	e.ctxMu.Lock()
	defer e.ctxMu.Unlock()
	return e.ctx, e.ctxSet
}

// WaitContext blocks until SetContext is called or ctx is done.
func (e *Exchange) WaitContext(ctx context.Context) (connector.CorrelationContext, error) {
	e.ctxMu.Lock()
	if e.ctxSet {
		v := e.ctx
		e.ctxMu.Unlock()
		return v, nil
	}
	ch := e.ctxCh
	e.ctxMu.Unlock()

	select {
	case <-ch:
		return e.Context()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IsCanceled reports whether Cancel has been called.
func (e *Exchange) IsCanceled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canceled
}

// IsCompleted reports whether Complete has been called.
func (e *Exchange) IsCompleted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.completed
}

// IsDone reports whether the exchange has finished, canceled or completed.
func (e *Exchange) IsDone() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canceled || e.completed
}

// Cancel marks the exchange canceled and runs completion callbacks exactly
// once. Idempotent (spec.md Section 5's cancellation rule).
func (e *Exchange) Cancel() {
	e.mu.Lock()
	if e.canceled || e.completed {
		e.mu.Unlock()
		return
	}
	e.canceled = true
	e.mu.Unlock()
	e.runCompletionCallbacks()
}

// Complete marks the exchange completed (request answered, no outstanding
// blocks or observe) and runs completion callbacks exactly once.
func (e *Exchange) Complete() {
	e.mu.Lock()
	if e.canceled || e.completed {
		e.mu.Unlock()
		return
	}
	e.completed = true
	e.mu.Unlock()
	e.runCompletionCallbacks()
}

// OnComplete registers cb to run when the exchange cancels or completes.
// If the exchange is already done, cb runs synchronously and immediately.
func (e *Exchange) OnComplete(cb func(*Exchange)) {
	e.mu.Lock()
	if e.canceled || e.completed {
		e.mu.Unlock()
		cb(e)
		return
	}
	e.onComplete = append(e.onComplete, cb)
	e.mu.Unlock()
}

func (e *Exchange) runCompletionCallbacks() {
	e.mu.Lock()
	cbs := e.onComplete
	e.onComplete = nil
	e.mu.Unlock()
	for _, cb := range cbs {
		cb(e)
	}
}

func (e *Exchange) setMIDKey(key KeyMID) {
	e.mu.Lock()
	e.midKey = &key
	e.mu.Unlock()
}

func (e *Exchange) setTokenKey(key KeyToken) {
	e.mu.Lock()
	e.tokenKey = &key
	e.mu.Unlock()
}

func (e *Exchange) setURIKey(key KeyURI) {
	e.mu.Lock()
	e.uriKey = &key
	e.mu.Unlock()
}

func (e *Exchange) keys() (mid *KeyMID, token *KeyToken, uri *KeyURI) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.midKey, e.tokenKey, e.uriKey
}
