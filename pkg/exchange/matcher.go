package exchange

import (
	"net"

	"github.com/backkem/coap/pkg/connector"
	"github.com/backkem/coap/pkg/message"
)

// Matcher maps inbound messages to Exchanges, deduplicates retransmitted
// requests, and assigns outbound message IDs and tokens. UdpMatcher and
// TcpMatcher share a Store but differ in retransmission and duplicate
// semantics (spec.md Section 4.3): TCP has no message IDs in the
// reliability sense, no dedup by MID, and no RST-on-unmatched-response.
type Matcher interface {
	// SendRequest registers req under ex before it is handed to the
	// codec. If req.MID is unset (UDP only) the matcher assigns one; if
	// req.Token is nil, the matcher generates one.
	SendRequest(ex *Exchange, req *message.Request) error

	// SendResponse registers resp's token against ex, reusing the
	// request's token when resp carries none of its own (the common
	// piggybacked-ACK and separate-response case).
	SendResponse(ex *Exchange, resp *message.Response) error

	// SendEmpty marks an outstanding ACK or RST as sent. TcpMatcher
	// rejects this call: CoAP-over-TCP carries no empty messages.
	SendEmpty(ex *Exchange, empty *message.Empty) error

	// ReceiveRequest returns the Exchange for req, creating one with
	// Origin Remote if none exists. duplicate is true when req is a
	// retransmit of a request already registered, meaning any cached
	// response should be re-emitted rather than redelivered upward.
	ReceiveRequest(req *message.Request, peer net.Addr) (ex *Exchange, duplicate bool)

	// ReceiveResponse looks up the Exchange owning resp's token and
	// validates the correlation context, rejecting cross-session
	// injection.
	ReceiveResponse(resp *message.Response, peer net.Addr, ctx connector.CorrelationContext) (*Exchange, error)

	// ReceiveEmpty matches an ACK or RST to the Exchange whose
	// outstanding message used that MID.
	ReceiveEmpty(empty *message.Empty, peer net.Addr) (ex *Exchange, ok bool)
}

func matchContext(ex *Exchange, ctx connector.CorrelationContext) error {
	established, have := ex.Context()
	if have && ctx != nil && established != ctx {
		return ErrCorrelationMismatch
	}
	return nil
}
