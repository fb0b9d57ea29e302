package endpoint

import (
	"sync"

	"github.com/backkem/coap/pkg/exchange"
	"github.com/backkem/coap/pkg/message"
)

// MessageDeliverer is the Endpoint's upward boundary to the application
// (spec.md Section 6). If none is installed at Start, a default
// client-side deliverer is used: it forwards responses to the request's
// pending-response callback and drops inbound requests.
type MessageDeliverer interface {
	DeliverRequest(ex *exchange.Exchange, req *message.Request)
	DeliverResponse(ex *exchange.Exchange, resp *message.Response)
}

// pendingCall holds the channel that Endpoint.SendRequest hands its
// caller, registered against the Exchange that originated the request.
type pendingCall struct {
	ch chan *message.Response
}

// defaultDeliverer is installed automatically at Start when the caller
// supplied none. It forwards responses to the channel Endpoint.SendRequest
// obtained from register and silently drops inbound requests, matching
// spec.md Section 6's stated default.
type defaultDeliverer struct {
	mu      sync.Mutex
	pending map[*exchange.Exchange]*pendingCall
}

func newDefaultDeliverer() *defaultDeliverer {
	return &defaultDeliverer{pending: make(map[*exchange.Exchange]*pendingCall)}
}

// register installs a callback waiting for ex's response, returning a
// channel to receive it (or a closed channel if the Exchange completes
// first without one, e.g. a timeout).
func (d *defaultDeliverer) register(ex *exchange.Exchange) <-chan *message.Response {
	ch := make(chan *message.Response, 1)
	d.mu.Lock()
	d.pending[ex] = &pendingCall{ch: ch}
	d.mu.Unlock()

	ex.OnComplete(func(e *exchange.Exchange) {
		d.mu.Lock()
		call, ok := d.pending[e]
		delete(d.pending, e)
		d.mu.Unlock()
		if ok {
			close(call.ch)
		}
	})
	return ch
}

func (d *defaultDeliverer) DeliverRequest(ex *exchange.Exchange, req *message.Request) {}

func (d *defaultDeliverer) DeliverResponse(ex *exchange.Exchange, resp *message.Response) {
	d.mu.Lock()
	call, ok := d.pending[ex]
	d.mu.Unlock()
	if !ok {
		return
	}
	select {
	case call.ch <- resp:
	default:
	}
}

// MessageDelivererFuncs adapts a pair of plain functions to MessageDeliverer for
// servers that only need DeliverRequest.
type MessageDelivererFuncs struct {
	OnRequest  func(ex *exchange.Exchange, req *message.Request)
	OnResponse func(ex *exchange.Exchange, resp *message.Response)
}

func (f MessageDelivererFuncs) DeliverRequest(ex *exchange.Exchange, req *message.Request) {
	if f.OnRequest != nil {
		f.OnRequest(ex, req)
	}
}

func (f MessageDelivererFuncs) DeliverResponse(ex *exchange.Exchange, resp *message.Response) {
	if f.OnResponse != nil {
		f.OnResponse(ex, resp)
	}
}
