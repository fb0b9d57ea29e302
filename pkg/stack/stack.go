package stack

import (
	"github.com/backkem/coap/pkg/exchange"
	"github.com/backkem/coap/pkg/message"
)

// Stack composes an ordered list of layers between a deliverer (the
// Endpoint's upward boundary) and an outbox (the Endpoint's downward
// boundary). layers is given top to bottom, e.g. [ObserveLayer,
// BlockwiseLayer, ReliabilityLayer]: the first layer sits closest to the
// deliverer, the last closest to the outbox.
//
// Stack itself implements Sender and Receiver, so callers never touch the
// individual chains: Endpoint.send_* enters at SendRequest/SendResponse/
// SendEmpty, Inbox enters at ReceiveRequest/ReceiveResponse/ReceiveEmpty.
type Stack struct {
	layers []Layer
	send   Sender
	recv   Receiver
}

// New builds a Stack. outbox is the bottom of the send path; deliverer is
// the top of the receive path. Layers that implement DownstreamBinder
// receive a Sender representing everything below them, for sends they
// initiate outside the call stack of an inbound hook (e.g. Blockwise
// requesting the next block).
func New(outbox Sender, deliverer Receiver, layers ...Layer) *Stack {
	s := &Stack{layers: layers}

	send := outbox
	for i := len(layers) - 1; i >= 0; i-- {
		if binder, ok := layers[i].(DownstreamBinder); ok {
			binder.BindDownstream(send)
		}
		send = &layerSender{layer: layers[i], next: send}
	}
	s.send = send

	recv := deliverer
	for i := 0; i < len(layers); i++ {
		recv = &layerReceiver{layer: layers[i], next: recv}
	}
	s.recv = recv

	return s
}

func (s *Stack) SendRequest(ex *exchange.Exchange, req *message.Request) error {
	return s.send.SendRequest(ex, req)
}

func (s *Stack) SendResponse(ex *exchange.Exchange, resp *message.Response) error {
	return s.send.SendResponse(ex, resp)
}

func (s *Stack) SendEmpty(ex *exchange.Exchange, empty *message.Empty) error {
	return s.send.SendEmpty(ex, empty)
}

func (s *Stack) ReceiveRequest(ex *exchange.Exchange, req *message.Request) error {
	return s.recv.ReceiveRequest(ex, req)
}

func (s *Stack) ReceiveResponse(ex *exchange.Exchange, resp *message.Response) error {
	return s.recv.ReceiveResponse(ex, resp)
}

func (s *Stack) ReceiveEmpty(ex *exchange.Exchange, empty *message.Empty) error {
	return s.recv.ReceiveEmpty(ex, empty)
}

// Layers returns the stack's layers, top to bottom, for tests and
// diagnostics.
func (s *Stack) Layers() []Layer {
	return s.layers
}
