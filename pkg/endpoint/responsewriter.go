package endpoint

import (
	"github.com/backkem/coap/pkg/exchange"
	"github.com/backkem/coap/pkg/message"
)

// ResponseWriter pairs an inbound request's Exchange with the Endpoint's
// send path, grounded on plgd-dev/go-coap's
// HandlerFunc(*ResponseWriter, *pool.Message) shape. It doesn't change
// deliver_request's signature (spec.md Section 6 still hands the
// MessageDeliverer the bare Exchange and Request); a ResponseWriter is
// just the pair a handler usually wants next to each other, constructed
// from those same two values.
type ResponseWriter struct {
	ep *Endpoint
	ex *exchange.Exchange
}

// NewResponseWriter wraps ex for replying through ep.
func NewResponseWriter(ep *Endpoint, ex *exchange.Exchange) *ResponseWriter {
	return &ResponseWriter{ep: ep, ex: ex}
}

// Exchange returns the request's Exchange.
func (w *ResponseWriter) Exchange() *exchange.Exchange {
	return w.ex
}

// WriteResponse sends resp for the wrapped Exchange via send_response.
func (w *ResponseWriter) WriteResponse(resp *message.Response) error {
	return w.ep.SendResponse(w.ex, resp)
}
