package stack

import (
	"github.com/backkem/coap/pkg/exchange"
	"github.com/backkem/coap/pkg/message"
)

// Sender is the downward-facing half of a Layer's six hooks: the
// operations a layer invokes on whatever sits below it (another layer, or
// the Outbox at the bottom of the stack).
type Sender interface {
	SendRequest(ex *exchange.Exchange, req *message.Request) error
	SendResponse(ex *exchange.Exchange, resp *message.Response) error
	SendEmpty(ex *exchange.Exchange, empty *message.Empty) error
}

// Receiver is the upward-facing half of a Layer's six hooks: the
// operations a layer invokes on whatever sits above it (another layer, or
// the deliverer at the top of the stack).
type Receiver interface {
	ReceiveRequest(ex *exchange.Exchange, req *message.Request) error
	ReceiveResponse(ex *exchange.Exchange, resp *message.Response) error
	ReceiveEmpty(ex *exchange.Exchange, empty *message.Empty) error
}

// Layer is one stage of the protocol stack (spec.md Section 4.2). Each
// hook receives the next stage in the call's direction and decides
// whether, and with what, to forward. Returning without calling next
// short-circuits the message (e.g. a stale Observe notification, or a
// canceled Exchange).
//
// Layers are values, not a class hierarchy: BaseLayer supplies pure
// pass-through behavior so a concrete layer only implements the hooks it
// cares about.
type Layer interface {
	SendRequest(ex *exchange.Exchange, req *message.Request, next Sender) error
	SendResponse(ex *exchange.Exchange, resp *message.Response, next Sender) error
	SendEmpty(ex *exchange.Exchange, empty *message.Empty, next Sender) error

	ReceiveRequest(ex *exchange.Exchange, req *message.Request, next Receiver) error
	ReceiveResponse(ex *exchange.Exchange, resp *message.Response, next Receiver) error
	ReceiveEmpty(ex *exchange.Exchange, empty *message.Empty, next Receiver) error
}

// DownstreamBinder is implemented by layers that need to initiate sends
// outside the call stack of an inbound hook, e.g. the Blockwise layer
// requesting the next block after a 2.31 Continue response arrives. Stack
// calls BindDownstream once at construction with a Sender representing
// everything below this layer.
type DownstreamBinder interface {
	BindDownstream(down Sender)
}

// BaseLayer forwards every hook to next unchanged. Concrete layers embed
// it and override only the hooks their concern touches.
type BaseLayer struct{}

func (BaseLayer) SendRequest(ex *exchange.Exchange, req *message.Request, next Sender) error {
	return next.SendRequest(ex, req)
}

func (BaseLayer) SendResponse(ex *exchange.Exchange, resp *message.Response, next Sender) error {
	return next.SendResponse(ex, resp)
}

func (BaseLayer) SendEmpty(ex *exchange.Exchange, empty *message.Empty, next Sender) error {
	return next.SendEmpty(ex, empty)
}

func (BaseLayer) ReceiveRequest(ex *exchange.Exchange, req *message.Request, next Receiver) error {
	return next.ReceiveRequest(ex, req)
}

func (BaseLayer) ReceiveResponse(ex *exchange.Exchange, resp *message.Response, next Receiver) error {
	return next.ReceiveResponse(ex, resp)
}

func (BaseLayer) ReceiveEmpty(ex *exchange.Exchange, empty *message.Empty, next Receiver) error {
	return next.ReceiveEmpty(ex, empty)
}

// layerSender binds one layer to the Sender below it, so calling
// layerSender.SendRequest re-enters the layer's own SendRequest hook with
// that binding fixed. Chaining these from the bottom layer up builds the
// top-to-bottom send path.
type layerSender struct {
	layer Layer
	next  Sender
}

func (s *layerSender) SendRequest(ex *exchange.Exchange, req *message.Request) error {
	return s.layer.SendRequest(ex, req, s.next)
}

func (s *layerSender) SendResponse(ex *exchange.Exchange, resp *message.Response) error {
	return s.layer.SendResponse(ex, resp, s.next)
}

func (s *layerSender) SendEmpty(ex *exchange.Exchange, empty *message.Empty) error {
	return s.layer.SendEmpty(ex, empty, s.next)
}

// layerReceiver binds one layer to the Receiver above it. Chaining these
// from the top layer down builds the bottom-to-top receive path.
type layerReceiver struct {
	layer Layer
	next  Receiver
}

func (r *layerReceiver) ReceiveRequest(ex *exchange.Exchange, req *message.Request) error {
	return r.layer.ReceiveRequest(ex, req, r.next)
}

func (r *layerReceiver) ReceiveResponse(ex *exchange.Exchange, resp *message.Response) error {
	return r.layer.ReceiveResponse(ex, resp, r.next)
}

func (r *layerReceiver) ReceiveEmpty(ex *exchange.Exchange, empty *message.Empty) error {
	return r.layer.ReceiveEmpty(ex, empty, r.next)
}
