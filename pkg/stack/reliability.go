package stack

import (
	"github.com/pion/logging"

	"github.com/backkem/coap/pkg/config"
	"github.com/backkem/coap/pkg/exchange"
	"github.com/backkem/coap/pkg/message"
)

// reliabilityState is the bookkeeping ReliabilityLayer attaches to
// Exchange.ReliabilityState for a locally-initiated CON whose ACK/RST is
// still outstanding.
type reliabilityState struct {
	timer *exchange.RetransmitTimer
}

// ReliabilityLayer is the bottom layer of the stack (spec.md Section
// 4.2). It arms a retransmission timer for every outbound CON, doubling
// ACK_TIMEOUT*U(1,ACK_RANDOM_FACTOR) on each retry up to MAX_RETRANSMIT,
// and disarms it on a matching ACK, RST or response. An exhausted timer
// completes the Exchange with a timeout; the deliverer sees this through
// Exchange.IsCompleted plus whatever completion callback the caller
// attached.
type ReliabilityLayer struct {
	BaseLayer

	cfg *config.Config
	log logging.LeveledLogger
}

// NewReliabilityLayer builds a ReliabilityLayer. loggerFactory may be nil,
// in which case logging.NewDefaultLoggerFactory() is used.
func NewReliabilityLayer(cfg *config.Config, loggerFactory logging.LoggerFactory) *ReliabilityLayer {
	l := &ReliabilityLayer{cfg: cfg}
	if loggerFactory != nil {
		l.log = loggerFactory.NewLogger("stack-reliability")
	} else {
		l.log = logging.NewDefaultLoggerFactory().NewLogger("stack-reliability")
	}
	return l
}

// SendRequest forwards req, then, for a Confirmable request, arms a
// retransmission timer that re-sends the identical request object on
// every timeout until the Exchange completes, is canceled, or
// MAX_RETRANSMIT attempts elapse (RFC 7252 Section 4.2, spec scenario B).
func (l *ReliabilityLayer) SendRequest(ex *exchange.Exchange, req *message.Request, next Sender) error {
	if err := next.SendRequest(ex, req); err != nil {
		return err
	}
	if req.Type != message.TypeConfirmable {
		return nil
	}
	l.armRetransmit(ex, func() error { return next.SendRequest(ex, req) })
	return nil
}

// SendResponse forwards resp unchanged. A separate (non-piggybacked) CON
// response gets its own retransmission because it carries its own new
// MID: it is armed here the same way SendRequest arms a CON request.
// ACK and NON responses are not retransmitted.
func (l *ReliabilityLayer) SendResponse(ex *exchange.Exchange, resp *message.Response, next Sender) error {
	if err := next.SendResponse(ex, resp); err != nil {
		return err
	}
	if resp.Type != message.TypeConfirmable {
		return nil
	}
	l.armRetransmit(ex, func() error { return next.SendResponse(ex, resp) })
	return nil
}

func (l *ReliabilityLayer) armRetransmit(ex *exchange.Exchange, resend func() error) {
	timer := exchange.NewRetransmitTimer(l.cfg)
	ex.ReliabilityState = &reliabilityState{timer: timer}

	var onTimeout func()
	onTimeout = func() {
		if ex.IsDone() {
			return
		}
		if err := resend(); err != nil {
			l.log.Errorf("reliability: retransmit failed: %v", err)
			return
		}
		if !timer.Schedule(onTimeout) {
			l.log.Warnf("reliability: exchange exhausted MAX_RETRANSMIT, completing with timeout")
			ex.Complete()
		}
	}
	if !timer.Schedule(onTimeout) {
		return
	}
	ex.OnComplete(func(*exchange.Exchange) { timer.Stop() })
}

// SendEmpty forwards an outbound ACK/RST unchanged; empty messages carry
// no reliability state of their own (spec.md invariant 6: they complete
// on the caller's thread with no retry).
func (l *ReliabilityLayer) SendEmpty(ex *exchange.Exchange, empty *message.Empty, next Sender) error {
	return next.SendEmpty(ex, empty)
}

// ReceiveResponse disarms any pending retransmission timer. Receipt of a
// response, piggybacked or separate, implicitly acknowledges the request
// it answers even if the matching empty ACK was processed earlier or
// never arrives separately. It then forwards upward.
func (l *ReliabilityLayer) ReceiveResponse(ex *exchange.Exchange, resp *message.Response, next Receiver) error {
	l.disarm(ex)
	return next.ReceiveResponse(ex, resp)
}

// ReceiveEmpty disarms the timer on a matching ACK or RST before
// forwarding. spec.md invariant 4 (answering an unsolicited CON/NON ping
// with exactly one RST) is handled by the Inbox, which never reaches this
// hook for messages with no matching Exchange.
func (l *ReliabilityLayer) ReceiveEmpty(ex *exchange.Exchange, empty *message.Empty, next Receiver) error {
	l.disarm(ex)
	return next.ReceiveEmpty(ex, empty)
}

func (l *ReliabilityLayer) disarm(ex *exchange.Exchange) {
	if st, ok := ex.ReliabilityState.(*reliabilityState); ok && st.timer != nil {
		st.timer.Stop()
	}
}
