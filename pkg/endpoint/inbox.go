package endpoint

import (
	"encoding/binary"
	"errors"

	"github.com/backkem/coap/pkg/connector"
	"github.com/backkem/coap/pkg/exchange"
	"github.com/backkem/coap/pkg/message"
	"github.com/backkem/coap/pkg/stack"
	"github.com/pion/logging"
)

// inbox implements connector.RawDataReceiver, the entry point for every
// inbound frame (spec.md Section 4.4). Preconditions on the frame's
// source address/port are programming errors and panic rather than being
// swallowed; everything downstream of that is reposted onto the protocol
// stage executor so no parsing happens on the connector's I/O goroutine.
type inbox struct {
	matcher      exchange.Matcher
	codec        message.Codec
	recv         stack.Receiver
	outbox       *outbox
	interceptors *interceptorList
	executor     Executor
	log          logging.LeveledLogger
}

func newInbox(m exchange.Matcher, codec message.Codec, recv stack.Receiver, ob *outbox, interceptors *interceptorList, executor Executor, log logging.LeveledLogger) *inbox {
	return &inbox{matcher: m, codec: codec, recv: recv, outbox: ob, interceptors: interceptors, executor: executor, log: log}
}

// Deliver is installed as the Connector's RawDataReceiver.
func (in *inbox) Deliver(frame *connector.RawData) {
	if frame.Peer == nil || frame.Peer.String() == "" {
		panic(ErrInvalidSource)
	}

	if err := in.executor.Submit(func() { in.process(frame) }); err != nil {
		in.log.Warnf("inbox: dropping frame, executor unavailable: %v", err)
	}
}

// process runs on the protocol stage.
func (in *inbox) process(frame *connector.RawData) {
	m, err := in.codec.Decode(frame.Data)
	if err != nil {
		in.handleParseFailure(frame, err)
		return
	}

	switch {
	case m.IsRequest():
		in.handleRequest(frame, &message.Request{Message: m})
	case m.IsResponse():
		in.handleResponse(frame, &message.Response{Message: m})
	case m.IsEmpty():
		in.handleEmpty(frame, &message.Empty{Message: m})
	default:
		in.log.Debugf("inbox: ignoring message with unrecognized code class %v", m.Code)
	}
}

// handleParseFailure implements spec.md Section 7.1's malformed-message
// rule: a Confirmable message whose type/MID survive the 4-byte fixed
// header gets an RST; anything else (non-confirmable, or too short even
// for the header) is dropped and logged.
func (in *inbox) handleParseFailure(frame *connector.RawData, cause error) {
	typ, mid, ok := peekHeader(frame.Data)
	if !ok || typ != message.TypeConfirmable {
		in.log.Debugf("inbox: dropping unparseable frame from %v: %v", frame.Peer, cause)
		return
	}
	in.log.Debugf("inbox: malformed CON from %v, resetting MID %d: %v", frame.Peer, mid, cause)
	rst := message.NewReset(mid)
	ex := exchange.NewExchange(exchange.OriginRemote, frame.Peer)
	if err := in.outbox.SendEmpty(ex, rst); err != nil {
		in.log.Warnf("inbox: failed to send RST to %v: %v", frame.Peer, err)
	}
}

// peekHeader extracts type and MID directly from the fixed 4-byte header
// shared by every CoAP-over-UDP message, independent of whether the rest
// of the message (options, token length) parses.
func peekHeader(b []byte) (typ message.Type, mid uint16, ok bool) {
	if len(b) < 4 {
		return 0, 0, false
	}
	typ = message.Type((b[0] >> 4) & 0x3)
	mid = binary.BigEndian.Uint16(b[2:4])
	return typ, mid, true
}

func (in *inbox) handleRequest(frame *connector.RawData, req *message.Request) {
	ex, duplicate := in.matcher.ReceiveRequest(req, frame.Peer)

	if duplicate {
		// Invariant 3: a duplicate inbound CON yields zero additional
		// deliver_request calls; re-emit the cached response if one
		// exists, rather than redelivering upward.
		if resp := ex.Response(); resp != nil {
			if err := in.outbox.SendResponse(ex, resp); err != nil {
				in.log.Warnf("inbox: failed to resend cached response to %v: %v", frame.Peer, err)
			}
		}
		return
	}

	if in.interceptors.runReceiveRequest(in.log.Warnf, ex, req) {
		return
	}
	if err := in.recv.ReceiveRequest(ex, req); err != nil {
		in.respondToBlockwiseError(frame, ex, req, err)
	}
}

// respondToBlockwiseError translates a blockwise reassembly failure
// (spec.md Section 7.6) into the 4.08/4.13 response RFC 7959 Section 2.5
// requires, instead of merely logging and dropping the request.
func (in *inbox) respondToBlockwiseError(frame *connector.RawData, ex *exchange.Exchange, req *message.Request, err error) {
	var code message.Code
	switch {
	case errors.Is(err, stack.ErrIncompleteBlockSequence):
		code = message.CodeRequestEntityIncomplete
	case errors.Is(err, stack.ErrResourceTooLarge):
		code = message.CodeRequestEntityTooLarge
	default:
		in.log.Warnf("inbox: stack rejected request from %v: %v", frame.Peer, err)
		return
	}

	typ := message.TypeAcknowledgement
	if req.Type != message.TypeConfirmable {
		typ = message.TypeNonConfirmable
	}
	resp := message.NewResponse(typ, code, req.MID, req.Token)
	if sendErr := in.outbox.SendResponse(ex, resp); sendErr != nil {
		in.log.Warnf("inbox: failed to send %v to %v: %v", code, frame.Peer, sendErr)
	}
}

func (in *inbox) handleResponse(frame *connector.RawData, resp *message.Response) {
	ex, err := in.matcher.ReceiveResponse(resp, frame.Peer, frame.Context)
	if err != nil {
		// Unmatched or cross-context response (spec.md Section 7.4/7.7):
		// a non-ACK response gets an RST; an ACK for an unknown MID is
		// silently dropped.
		in.log.Debugf("inbox: unmatched response from %v: %v", frame.Peer, err)
		if resp.Type != message.TypeAcknowledgement {
			ex := exchange.NewExchange(exchange.OriginRemote, frame.Peer)
			if sendErr := in.outbox.SendEmpty(ex, message.NewReset(resp.MID)); sendErr != nil {
				in.log.Warnf("inbox: failed to send RST to %v: %v", frame.Peer, sendErr)
			}
		}
		return
	}

	if in.interceptors.runReceiveResponse(in.log.Warnf, ex, resp) {
		return
	}
	if err := in.recv.ReceiveResponse(ex, resp); err != nil {
		if errors.Is(err, stack.ErrIncompleteBlockSequence) || errors.Is(err, stack.ErrResourceTooLarge) {
			// No response code applies to a response we received: abort the
			// blockwise transfer by resetting the MID it arrived on instead
			// of just dropping it.
			in.log.Debugf("inbox: aborting blockwise transfer from %v: %v", frame.Peer, err)
			if sendErr := in.outbox.SendEmpty(ex, message.NewReset(resp.MID)); sendErr != nil {
				in.log.Warnf("inbox: failed to send RST to %v: %v", frame.Peer, sendErr)
			}
			return
		}
		in.log.Warnf("inbox: stack rejected response from %v: %v", frame.Peer, err)
	}
}

func (in *inbox) handleEmpty(frame *connector.RawData, empty *message.Empty) {
	if empty.Type == message.TypeConfirmable || empty.Type == message.TypeNonConfirmable {
		// A CoAP ping: an empty CON/NON with no matching exchange always
		// elicits exactly one RST (spec.md Section 8, invariant on
		// receive_empty_message).
		ex := exchange.NewExchange(exchange.OriginRemote, frame.Peer)
		if err := in.outbox.SendEmpty(ex, message.NewReset(empty.MID)); err != nil {
			in.log.Warnf("inbox: failed to send RST to %v: %v", frame.Peer, err)
		}
		return
	}

	ex, ok := in.matcher.ReceiveEmpty(empty, frame.Peer)
	if !ok {
		in.log.Debugf("inbox: unmatched empty message from %v", frame.Peer)
		return
	}
	if in.interceptors.runReceiveEmpty(in.log.Warnf, ex, empty) {
		return
	}
	if err := in.recv.ReceiveEmpty(ex, empty); err != nil {
		in.log.Warnf("inbox: stack rejected empty message from %v: %v", frame.Peer, err)
	}
}
