package stack

import (
	"github.com/pion/logging"

	"github.com/backkem/coap/pkg/config"
	"github.com/backkem/coap/pkg/exchange"
	"github.com/backkem/coap/pkg/message"
)

// blockSZXFor returns the SZX nibble (RFC 7959 Section 2.2) for a block
// size in bytes, one of 16,32,64,128,256,512,1024. Config.Validate already
// rejects any other PreferredBlockSize.
func blockSZXFor(size int) uint8 {
	szx := uint8(0)
	for s := 16; s < size; s <<= 1 {
		szx++
	}
	return szx
}

func blockSizeForSZX(szx uint8) int {
	return 16 << szx
}

// encodeBlockOption packs (num, more, szx) into the minimal big-endian
// value a Block1/Block2 option carries (RFC 7959 Section 2.2).
func encodeBlockOption(num uint32, more bool, szx uint8) uint32 {
	v := num << 4
	if more {
		v |= 0x8
	}
	v |= uint32(szx) & 0x7
	return v
}

func decodeBlockOption(v uint32) (num uint32, more bool, szx uint8) {
	return v >> 4, v&0x8 != 0, uint8(v & 0x7)
}

// blockwiseState is the per-exchange reassembly/transfer bookkeeping
// BlockwiseLayer attaches to Exchange.BlockwiseState.
type blockwiseState struct {
	// outbound: remaining bytes of a body this endpoint is splitting, and
	// the block size negotiated for it.
	outBody []byte
	outSZX  uint8
	outNum  uint32

	// inbound: bytes reassembled from a body the peer is splitting.
	inBuf []byte
	inNum uint32
	inSZX uint8
}

// BlockwiseLayer is the middle layer of the stack (spec.md Section 4.2,
// RFC 7959). Outbound bodies larger than Config.PreferredBlockSize are
// split into a first Block1/Block2-tagged fragment; later fragments are
// driven by the peer's continuation (a 2.31 Continue for Block1, a
// repeated GET for Block2). Inbound fragments are reassembled against
// Exchange.BlockwiseState, capped at Config.MaxResourceBodySize.
type BlockwiseLayer struct {
	BaseLayer

	cfg  *config.Config
	log  logging.LeveledLogger
	down Sender
}

// NewBlockwiseLayer builds a BlockwiseLayer. loggerFactory may be nil.
func NewBlockwiseLayer(cfg *config.Config, loggerFactory logging.LoggerFactory) *BlockwiseLayer {
	l := &BlockwiseLayer{cfg: cfg}
	if loggerFactory != nil {
		l.log = loggerFactory.NewLogger("stack-blockwise")
	} else {
		l.log = logging.NewDefaultLoggerFactory().NewLogger("stack-blockwise")
	}
	return l
}

// BindDownstream implements DownstreamBinder: the layer needs to initiate
// follow-up block requests from inside ReceiveResponse, outside the
// original SendRequest call stack.
func (l *BlockwiseLayer) BindDownstream(down Sender) {
	l.down = down
}

func asRequest(m *message.Message) *message.Request {
	return &message.Request{Message: m}
}

func asResponse(m *message.Message) *message.Response {
	return &message.Response{Message: m}
}

// SendRequest splits req.Payload into PreferredBlockSize fragments when it
// exceeds that size, sending only the first and stashing the remainder on
// the Exchange for ReceiveResponse to continue.
func (l *BlockwiseLayer) SendRequest(ex *exchange.Exchange, req *message.Request, next Sender) error {
	if len(req.Payload) <= l.cfg.PreferredBlockSize {
		return next.SendRequest(ex, req)
	}

	szx := blockSZXFor(l.cfg.PreferredBlockSize)
	size := blockSizeForSZX(szx)
	first := req.Clone()
	first.Payload = req.Payload[:size]
	first.Options.AddUint(message.OptionBlock1, encodeBlockOption(0, true, szx))

	ex.BlockwiseState = &blockwiseState{
		outBody: req.Payload[size:],
		outSZX:  szx,
		outNum:  1,
	}
	return next.SendRequest(ex, asRequest(first))
}

// SendResponse splits resp.Payload the same way, tagging fragments with
// Block2. A client drives continuation with a repeated GET carrying an
// updated Block2 option, handled by whatever resource logic sits above
// this layer; BlockwiseLayer only fragments what it is handed.
func (l *BlockwiseLayer) SendResponse(ex *exchange.Exchange, resp *message.Response, next Sender) error {
	if len(resp.Payload) <= l.cfg.PreferredBlockSize {
		return next.SendResponse(ex, resp)
	}

	szx := blockSZXFor(l.cfg.PreferredBlockSize)
	size := blockSizeForSZX(szx)
	first := resp.Clone()
	first.Payload = resp.Payload[:size]
	first.Options.AddUint(message.OptionBlock2, encodeBlockOption(0, true, szx))

	st, _ := ex.BlockwiseState.(*blockwiseState)
	if st == nil {
		st = &blockwiseState{}
	}
	st.outBody = resp.Payload[size:]
	st.outSZX = szx
	st.outNum = 1
	ex.BlockwiseState = st

	return next.SendResponse(ex, asResponse(first))
}

// ReceiveResponse reassembles an inbound Block2 fragment, forwarding the
// completed body upward only once the last fragment (more=false) arrives.
// A Block1 option on the response is a 2.31 Continue acknowledging an
// outbound fragment: it drives the next stashed chunk out instead of
// forwarding anything upward.
func (l *BlockwiseLayer) ReceiveResponse(ex *exchange.Exchange, resp *message.Response, next Receiver) error {
	if v, ok := resp.Options.GetUint(message.OptionBlock1); ok {
		return l.continueOutbound(ex, v)
	}

	v, ok := resp.Options.GetUint(message.OptionBlock2)
	if !ok {
		return next.ReceiveResponse(ex, resp)
	}
	num, more, szx := decodeBlockOption(v)

	st, _ := ex.BlockwiseState.(*blockwiseState)
	if st == nil || num == 0 {
		st = &blockwiseState{inSZX: szx}
	}
	if num != st.inNum {
		l.log.Warnf("blockwise: expected block %d, got %d", st.inNum, num)
		return ErrIncompleteBlockSequence
	}
	st.inBuf = append(st.inBuf, resp.Payload...)
	if len(st.inBuf) > l.cfg.MaxResourceBodySize {
		l.log.Warnf("blockwise: reassembled body exceeds %d bytes", l.cfg.MaxResourceBodySize)
		return ErrResourceTooLarge
	}
	st.inNum = num + 1

	if more {
		ex.BlockwiseState = st
		req := ex.Request()
		if req == nil || l.down == nil {
			return nil
		}
		cont := req.Clone()
		cont.Options.Remove(message.OptionBlock2)
		cont.Options.AddUint(message.OptionBlock2, encodeBlockOption(st.inNum, false, st.inSZX))
		cont.Payload = nil
		return l.down.SendRequest(ex, asRequest(cont))
	}

	full := resp.Clone()
	full.Options.Remove(message.OptionBlock2)
	full.Payload = st.inBuf
	ex.BlockwiseState = nil
	return next.ReceiveResponse(ex, asResponse(full))
}

// ReceiveRequest reassembles an inbound Block1 fragment (a peer splitting a
// large PUT/POST), forwarding the completed request upward only once the
// last fragment (more=false) arrives. Each accepted intermediate fragment
// is acknowledged with a 2.31 Continue so the peer sends the next block;
// reassembly failures are returned rather than forwarded, so inbox can
// translate them into the 4.08/4.13 response RFC 7959 Section 2.5 and
// spec.md Section 7.6 require.
func (l *BlockwiseLayer) ReceiveRequest(ex *exchange.Exchange, req *message.Request, next Receiver) error {
	v, ok := req.Options.GetUint(message.OptionBlock1)
	if !ok {
		return next.ReceiveRequest(ex, req)
	}
	num, more, szx := decodeBlockOption(v)

	st, _ := ex.BlockwiseState.(*blockwiseState)
	if st == nil || num == 0 {
		st = &blockwiseState{inSZX: szx}
	}
	if num != st.inNum {
		l.log.Warnf("blockwise: expected block %d, got %d", st.inNum, num)
		return ErrIncompleteBlockSequence
	}
	st.inBuf = append(st.inBuf, req.Payload...)
	if len(st.inBuf) > l.cfg.MaxResourceBodySize {
		l.log.Warnf("blockwise: reassembled body exceeds %d bytes", l.cfg.MaxResourceBodySize)
		return ErrResourceTooLarge
	}
	st.inNum = num + 1

	if more {
		ex.BlockwiseState = st
		if l.down == nil {
			return nil
		}
		typ := message.TypeAcknowledgement
		if req.Type != message.TypeConfirmable {
			typ = message.TypeNonConfirmable
		}
		cont := message.NewResponse(typ, message.CodeContinue, req.MID, req.Token)
		cont.Options.AddUint(message.OptionBlock1, encodeBlockOption(num, true, szx))
		return l.down.SendResponse(ex, cont)
	}

	full := req.Clone()
	full.Options.Remove(message.OptionBlock1)
	full.Payload = st.inBuf
	ex.BlockwiseState = nil
	return next.ReceiveRequest(ex, asRequest(full))
}

func (l *BlockwiseLayer) continueOutbound(ex *exchange.Exchange, block1 uint32) error {
	_, more, szx := decodeBlockOption(block1)
	st, ok := ex.BlockwiseState.(*blockwiseState)
	if !ok || !more || len(st.outBody) == 0 {
		ex.BlockwiseState = nil
		return nil
	}
	size := blockSizeForSZX(szx)
	if size > len(st.outBody) {
		size = len(st.outBody)
	}
	chunk := st.outBody[:size]
	remaining := st.outBody[size:]
	hasMore := len(remaining) > 0

	req := ex.Request()
	if req == nil || l.down == nil {
		return nil
	}
	cont := req.Clone()
	cont.Options.Remove(message.OptionBlock1)
	cont.Options.AddUint(message.OptionBlock1, encodeBlockOption(st.outNum, hasMore, szx))
	cont.Payload = chunk

	st.outBody = remaining
	st.outNum++
	ex.BlockwiseState = st

	return l.down.SendRequest(ex, asRequest(cont))
}
