package endpoint

import (
	"github.com/backkem/coap/pkg/connector"
	"github.com/backkem/coap/pkg/exchange"
	"github.com/backkem/coap/pkg/message"
	"github.com/pion/logging"
)

// outbox implements stack.Sender, the bottom of the protocol stack
// (spec.md Section 4.4). Each send operation: (1) asserts the
// destination address is set, (2) calls the matcher's send-side hook to
// register the message and assign MID/token, (3) fans the message
// through the interceptor list, and (4) if not canceled, encodes it and
// writes it through the connector. Every write attaches a
// ContextEstablishedFunc that stores the correlation context on the
// Exchange (Exchange.SetContext) once the transport reports it.
type outbox struct {
	matcher      exchange.Matcher
	connector    connector.Connector
	codec        message.Codec
	interceptors *interceptorList
	log          logging.LeveledLogger
}

func newOutbox(m exchange.Matcher, c connector.Connector, codec message.Codec, interceptors *interceptorList, log logging.LeveledLogger) *outbox {
	return &outbox{matcher: m, connector: c, codec: codec, interceptors: interceptors, log: log}
}

func (o *outbox) SendRequest(ex *exchange.Exchange, req *message.Request) error {
	if ex.RemoteAddr == nil {
		return ErrInvalidDestination
	}
	if err := o.matcher.SendRequest(ex, req); err != nil {
		return err
	}
	if o.interceptors.runSendRequest(o.log.Warnf, ex, req) {
		return nil
	}
	return o.write(ex, req.Message)
}

func (o *outbox) SendResponse(ex *exchange.Exchange, resp *message.Response) error {
	if ex.RemoteAddr == nil {
		return ErrInvalidDestination
	}
	if err := o.matcher.SendResponse(ex, resp); err != nil {
		return err
	}
	if o.interceptors.runSendResponse(o.log.Warnf, ex, resp) {
		return nil
	}
	return o.write(ex, resp.Message)
}

func (o *outbox) SendEmpty(ex *exchange.Exchange, empty *message.Empty) error {
	if ex.RemoteAddr == nil {
		return ErrInvalidDestination
	}
	if err := o.matcher.SendEmpty(ex, empty); err != nil {
		return err
	}
	if o.interceptors.runSendEmpty(o.log.Warnf, ex, empty) {
		return nil
	}
	return o.write(ex, empty.Message)
}

func (o *outbox) write(ex *exchange.Exchange, m *message.Message) error {
	data, err := o.codec.Encode(m)
	if err != nil {
		return err
	}
	return o.connector.Send(data, ex.RemoteAddr, func(ctx connector.CorrelationContext) {
		ex.SetContext(ctx)
	})
}
