package stack

import (
	"bytes"
	"testing"

	"github.com/backkem/coap/pkg/config"
	"github.com/backkem/coap/pkg/exchange"
	"github.com/backkem/coap/pkg/message"
)

func TestBlockOptionRoundTrip(t *testing.T) {
	v := encodeBlockOption(5, true, 4)
	num, more, szx := decodeBlockOption(v)
	if num != 5 || !more || szx != 4 {
		t.Errorf("decodeBlockOption(%d) = (%d, %v, %d), want (5, true, 4)", v, num, more, szx)
	}
}

func TestBlockwiseLayerSplitsOversizeRequest(t *testing.T) {
	cfg := config.New()
	cfg.PreferredBlockSize = 16

	l := NewBlockwiseLayer(cfg, nil)
	down := &capturingSender{}
	l.BindDownstream(down)

	ex := exchange.NewExchange(exchange.OriginLocal, testAddr("127.0.0.1:5683"))
	payload := bytes.Repeat([]byte{0xAB}, 40)
	req := message.NewRequest(message.TypeConfirmable, message.CodePUT, 1, []byte{1})
	req.Payload = payload

	next := &capturingSender{}
	if err := l.SendRequest(ex, req, next); err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}
	if len(next.reqs) != 1 {
		t.Fatalf("next saw %d requests, want 1", len(next.reqs))
	}
	sent := next.reqs[0]
	if len(sent.Payload) != 16 {
		t.Errorf("first fragment len = %d, want 16", len(sent.Payload))
	}
	v, ok := sent.Options.GetUint(message.OptionBlock1)
	if !ok {
		t.Fatal("first fragment missing Block1 option")
	}
	num, more, _ := decodeBlockOption(v)
	if num != 0 || !more {
		t.Errorf("Block1 = (num=%d more=%v), want (0, true)", num, more)
	}

	st, ok := ex.BlockwiseState.(*blockwiseState)
	if !ok {
		t.Fatal("exchange has no blockwiseState after split")
	}
	if len(st.outBody) != 24 {
		t.Errorf("remaining outBody len = %d, want 24", len(st.outBody))
	}
}

func TestBlockwiseLayerPassesThroughSmallRequest(t *testing.T) {
	cfg := config.New()
	l := NewBlockwiseLayer(cfg, nil)
	ex := exchange.NewExchange(exchange.OriginLocal, testAddr("127.0.0.1:5683"))
	req := message.NewRequest(message.TypeConfirmable, message.CodeGET, 1, []byte{1})
	req.Payload = []byte{1, 2, 3}

	next := &capturingSender{}
	if err := l.SendRequest(ex, req, next); err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}
	if len(next.reqs) != 1 || next.reqs[0] != req {
		t.Error("small request should pass through unchanged")
	}
	if ex.BlockwiseState != nil {
		t.Error("small request should not allocate blockwiseState")
	}
}

func TestBlockwiseLayerReassemblesResponse(t *testing.T) {
	cfg := config.New()
	cfg.MaxResourceBodySize = 1024
	l := NewBlockwiseLayer(cfg, nil)
	down := &capturingSender{}
	l.BindDownstream(down)

	ex := exchange.NewExchange(exchange.OriginLocal, testAddr("127.0.0.1:5683"))
	req := message.NewRequest(message.TypeConfirmable, message.CodeGET, 1, []byte{1})
	ex.SetRequest(req)

	next := &capturingReceiver{}

	first := message.NewResponse(message.TypeAcknowledgement, message.CodeContent, 1, []byte{1})
	first.Payload = []byte("hello-")
	first.Options.AddUint(message.OptionBlock2, encodeBlockOption(0, true, 4))
	if err := l.ReceiveResponse(ex, first, next); err != nil {
		t.Fatalf("ReceiveResponse(first) error = %v", err)
	}
	if len(next.resps) != 0 {
		t.Fatal("partial response should not reach the deliverer")
	}
	if len(down.reqs) != 1 {
		t.Fatalf("expected one follow-up request, got %d", len(down.reqs))
	}

	last := message.NewResponse(message.TypeAcknowledgement, message.CodeContent, 1, []byte{1})
	last.Payload = []byte("world")
	last.Options.AddUint(message.OptionBlock2, encodeBlockOption(1, false, 4))
	if err := l.ReceiveResponse(ex, last, next); err != nil {
		t.Fatalf("ReceiveResponse(last) error = %v", err)
	}
	if len(next.resps) != 1 {
		t.Fatalf("expected the reassembled response to reach the deliverer, got %d", len(next.resps))
	}
	if got := string(next.resps[0].Payload); got != "hello-world" {
		t.Errorf("reassembled payload = %q, want %q", got, "hello-world")
	}
	if ex.BlockwiseState != nil {
		t.Error("blockwiseState should be cleared once reassembly completes")
	}
}

func TestBlockwiseLayerRejectsOutOfOrderBlock(t *testing.T) {
	cfg := config.New()
	l := NewBlockwiseLayer(cfg, nil)
	ex := exchange.NewExchange(exchange.OriginLocal, testAddr("127.0.0.1:5683"))

	bad := message.NewResponse(message.TypeAcknowledgement, message.CodeContent, 1, []byte{1})
	bad.Payload = []byte("x")
	bad.Options.AddUint(message.OptionBlock2, encodeBlockOption(2, false, 4))

	err := l.ReceiveResponse(ex, bad, &capturingReceiver{})
	if err != ErrIncompleteBlockSequence {
		t.Errorf("ReceiveResponse() error = %v, want ErrIncompleteBlockSequence", err)
	}
}

func TestBlockwiseLayerReassemblesInboundRequest(t *testing.T) {
	cfg := config.New()
	cfg.MaxResourceBodySize = 1024
	l := NewBlockwiseLayer(cfg, nil)
	down := &capturingSender{}
	l.BindDownstream(down)

	ex := exchange.NewExchange(exchange.OriginRemote, testAddr("127.0.0.1:5683"))
	next := &capturingReceiver{}

	first := message.NewRequest(message.TypeConfirmable, message.CodePUT, 1, []byte{1})
	first.Payload = []byte("hello-")
	first.Options.AddUint(message.OptionBlock1, encodeBlockOption(0, true, 4))
	if err := l.ReceiveRequest(ex, first, next); err != nil {
		t.Fatalf("ReceiveRequest(first) error = %v", err)
	}
	if len(next.reqs) != 0 {
		t.Fatal("partial request should not reach the deliverer")
	}
	if len(down.resps) != 1 {
		t.Fatalf("expected one Continue response, got %d", len(down.resps))
	}
	cont := down.resps[0]
	if cont.Code != message.CodeContinue {
		t.Errorf("continuation code = %v, want 2.31 Continue", cont.Code)
	}
	v, ok := cont.Options.GetUint(message.OptionBlock1)
	if !ok {
		t.Fatal("continuation response missing Block1 option")
	}
	num, more, _ := decodeBlockOption(v)
	if num != 0 || !more {
		t.Errorf("continuation Block1 = (num=%d more=%v), want (0, true)", num, more)
	}

	last := message.NewRequest(message.TypeConfirmable, message.CodePUT, 2, []byte{1})
	last.Payload = []byte("world")
	last.Options.AddUint(message.OptionBlock1, encodeBlockOption(1, false, 4))
	if err := l.ReceiveRequest(ex, last, next); err != nil {
		t.Fatalf("ReceiveRequest(last) error = %v", err)
	}
	if len(next.reqs) != 1 {
		t.Fatalf("expected the reassembled request to reach the deliverer, got %d", len(next.reqs))
	}
	if got := string(next.reqs[0].Payload); got != "hello-world" {
		t.Errorf("reassembled payload = %q, want %q", got, "hello-world")
	}
	if ex.BlockwiseState != nil {
		t.Error("blockwiseState should be cleared once reassembly completes")
	}
}

func TestBlockwiseLayerPassesThroughSmallInboundRequest(t *testing.T) {
	cfg := config.New()
	l := NewBlockwiseLayer(cfg, nil)
	ex := exchange.NewExchange(exchange.OriginRemote, testAddr("127.0.0.1:5683"))
	req := message.NewRequest(message.TypeConfirmable, message.CodeGET, 1, []byte{1})

	next := &capturingReceiver{}
	if err := l.ReceiveRequest(ex, req, next); err != nil {
		t.Fatalf("ReceiveRequest() error = %v", err)
	}
	if len(next.reqs) != 1 || next.reqs[0] != req {
		t.Error("request without Block1 should pass through unchanged")
	}
}

func TestBlockwiseLayerRejectsOutOfOrderInboundBlock(t *testing.T) {
	cfg := config.New()
	l := NewBlockwiseLayer(cfg, nil)
	ex := exchange.NewExchange(exchange.OriginRemote, testAddr("127.0.0.1:5683"))

	bad := message.NewRequest(message.TypeConfirmable, message.CodePUT, 1, []byte{1})
	bad.Payload = []byte("x")
	bad.Options.AddUint(message.OptionBlock1, encodeBlockOption(2, false, 4))

	err := l.ReceiveRequest(ex, bad, &capturingReceiver{})
	if err != ErrIncompleteBlockSequence {
		t.Errorf("ReceiveRequest() error = %v, want ErrIncompleteBlockSequence", err)
	}
}

func TestBlockwiseLayerRejectsOversizeInboundBody(t *testing.T) {
	cfg := config.New()
	cfg.MaxResourceBodySize = 8
	l := NewBlockwiseLayer(cfg, nil)
	ex := exchange.NewExchange(exchange.OriginRemote, testAddr("127.0.0.1:5683"))

	req := message.NewRequest(message.TypeConfirmable, message.CodePUT, 1, []byte{1})
	req.Payload = bytes.Repeat([]byte{0xAB}, 16)
	req.Options.AddUint(message.OptionBlock1, encodeBlockOption(0, true, 4))

	err := l.ReceiveRequest(ex, req, &capturingReceiver{})
	if err != ErrResourceTooLarge {
		t.Errorf("ReceiveRequest() error = %v, want ErrResourceTooLarge", err)
	}
}

type capturingSender struct {
	reqs  []*message.Request
	resps []*message.Response
}

func (c *capturingSender) SendRequest(ex *exchange.Exchange, req *message.Request) error {
	c.reqs = append(c.reqs, req)
	return nil
}
func (c *capturingSender) SendResponse(ex *exchange.Exchange, resp *message.Response) error {
	c.resps = append(c.resps, resp)
	return nil
}
func (c *capturingSender) SendEmpty(ex *exchange.Exchange, empty *message.Empty) error {
	return nil
}

type capturingReceiver struct {
	reqs  []*message.Request
	resps []*message.Response
}

func (c *capturingReceiver) ReceiveRequest(ex *exchange.Exchange, req *message.Request) error {
	c.reqs = append(c.reqs, req)
	return nil
}
func (c *capturingReceiver) ReceiveResponse(ex *exchange.Exchange, resp *message.Response) error {
	c.resps = append(c.resps, resp)
	return nil
}
func (c *capturingReceiver) ReceiveEmpty(ex *exchange.Exchange, empty *message.Empty) error {
	return nil
}
