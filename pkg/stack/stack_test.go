package stack

import (
	"net"
	"testing"

	"github.com/backkem/coap/pkg/exchange"
	"github.com/backkem/coap/pkg/message"
)

func testAddr(s string) net.Addr {
	addr, err := net.ResolveUDPAddr("udp", s)
	if err != nil {
		panic(err)
	}
	return addr
}

// recordingLayer appends its name to a shared log on every hook and
// forwards unchanged, letting tests assert traversal order.
type recordingLayer struct {
	BaseLayer
	name string
	log  *[]string
}

func (l *recordingLayer) SendRequest(ex *exchange.Exchange, req *message.Request, next Sender) error {
	*l.log = append(*l.log, l.name+":send")
	return next.SendRequest(ex, req)
}

func (l *recordingLayer) ReceiveRequest(ex *exchange.Exchange, req *message.Request, next Receiver) error {
	*l.log = append(*l.log, l.name+":recv")
	return next.ReceiveRequest(ex, req)
}

type fakeOutbox struct {
	log *[]string
}

func (f *fakeOutbox) SendRequest(ex *exchange.Exchange, req *message.Request) error {
	*f.log = append(*f.log, "outbox")
	return nil
}
func (f *fakeOutbox) SendResponse(ex *exchange.Exchange, resp *message.Response) error {
	*f.log = append(*f.log, "outbox")
	return nil
}
func (f *fakeOutbox) SendEmpty(ex *exchange.Exchange, empty *message.Empty) error {
	*f.log = append(*f.log, "outbox")
	return nil
}

type fakeDeliverer struct {
	log *[]string
}

func (f *fakeDeliverer) ReceiveRequest(ex *exchange.Exchange, req *message.Request) error {
	*f.log = append(*f.log, "deliverer")
	return nil
}
func (f *fakeDeliverer) ReceiveResponse(ex *exchange.Exchange, resp *message.Response) error {
	*f.log = append(*f.log, "deliverer")
	return nil
}
func (f *fakeDeliverer) ReceiveEmpty(ex *exchange.Exchange, empty *message.Empty) error {
	*f.log = append(*f.log, "deliverer")
	return nil
}

func TestStackSendTraversesTopToBottom(t *testing.T) {
	var log []string
	top := &recordingLayer{name: "top", log: &log}
	mid := &recordingLayer{name: "mid", log: &log}
	bottom := &recordingLayer{name: "bottom", log: &log}
	outbox := &fakeOutbox{log: &log}
	deliverer := &fakeDeliverer{log: &log}

	s := New(outbox, deliverer, top, mid, bottom)

	ex := exchange.NewExchange(exchange.OriginLocal, testAddr("127.0.0.1:5683"))
	req := message.NewRequest(message.TypeConfirmable, message.CodeGET, 1, []byte{1})
	if err := s.SendRequest(ex, req); err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}

	want := []string{"top:send", "mid:send", "bottom:send", "outbox"}
	if !equalStrings(log, want) {
		t.Errorf("traversal order = %v, want %v", log, want)
	}
}

func TestStackReceiveTraversesBottomToTop(t *testing.T) {
	var log []string
	top := &recordingLayer{name: "top", log: &log}
	mid := &recordingLayer{name: "mid", log: &log}
	bottom := &recordingLayer{name: "bottom", log: &log}
	outbox := &fakeOutbox{log: &log}
	deliverer := &fakeDeliverer{log: &log}

	s := New(outbox, deliverer, top, mid, bottom)

	ex := exchange.NewExchange(exchange.OriginRemote, testAddr("127.0.0.1:5683"))
	req := message.NewRequest(message.TypeConfirmable, message.CodeGET, 1, []byte{1})
	if err := s.ReceiveRequest(ex, req); err != nil {
		t.Fatalf("ReceiveRequest() error = %v", err)
	}

	want := []string{"bottom:recv", "mid:recv", "top:recv", "deliverer"}
	if !equalStrings(log, want) {
		t.Errorf("traversal order = %v, want %v", log, want)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
