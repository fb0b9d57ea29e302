package endpoint

import (
	"net"
	"testing"

	"github.com/backkem/coap/pkg/connector"
	"github.com/backkem/coap/pkg/exchange"
	"github.com/backkem/coap/pkg/message"
	"github.com/pion/logging"
)

type fakeMatcher struct {
	sendRequestErr  error
	sendResponseErr error
	sendEmptyErr    error
	requests        []*message.Request
	responses       []*message.Response
	empties         []*message.Empty
}

func (m *fakeMatcher) SendRequest(ex *exchange.Exchange, req *message.Request) error {
	m.requests = append(m.requests, req)
	return m.sendRequestErr
}
func (m *fakeMatcher) SendResponse(ex *exchange.Exchange, resp *message.Response) error {
	m.responses = append(m.responses, resp)
	return m.sendResponseErr
}
func (m *fakeMatcher) SendEmpty(ex *exchange.Exchange, empty *message.Empty) error {
	m.empties = append(m.empties, empty)
	return m.sendEmptyErr
}
func (m *fakeMatcher) ReceiveRequest(req *message.Request, peer net.Addr) (*exchange.Exchange, bool) {
	return nil, false
}
func (m *fakeMatcher) ReceiveResponse(resp *message.Response, peer net.Addr, ctx connector.CorrelationContext) (*exchange.Exchange, error) {
	return nil, nil
}
func (m *fakeMatcher) ReceiveEmpty(empty *message.Empty, peer net.Addr) (*exchange.Exchange, bool) {
	return nil, false
}

type fakeConnector struct {
	sent     [][]byte
	sendErr  error
	receiver connector.RawDataReceiver
	scheme   message.Scheme
}

func (c *fakeConnector) Start() error   { return nil }
func (c *fakeConnector) Stop() error    { return nil }
func (c *fakeConnector) Destroy() error { return nil }
func (c *fakeConnector) Send(data []byte, peer net.Addr, onEstablished connector.ContextEstablishedFunc) error {
	c.sent = append(c.sent, data)
	if onEstablished != nil {
		onEstablished(nil)
	}
	return c.sendErr
}
func (c *fakeConnector) SetRawDataReceiver(r connector.RawDataReceiver) { c.receiver = r }
func (c *fakeConnector) LocalAddr() net.Addr                           { return testAddr("local:0") }
func (c *fakeConnector) Scheme() message.Scheme                        { return c.scheme }
func (c *fakeConnector) IsSchemeSupported(s message.Scheme) bool       { return s == c.scheme }

func TestOutboxSendRequestRejectsMissingDestination(t *testing.T) {
	ob := newOutbox(&fakeMatcher{}, &fakeConnector{}, message.UDPCodec{}, &interceptorList{}, logging.NewDefaultLoggerFactory().NewLogger("test"))
	ex := exchange.NewExchange(exchange.OriginLocal, nil)
	req := message.NewRequest(message.TypeConfirmable, message.CodeGET, 1, nil)

	if err := ob.SendRequest(ex, req); err != ErrInvalidDestination {
		t.Fatalf("SendRequest = %v, want ErrInvalidDestination", err)
	}
}

func TestOutboxSendRequestWritesThroughConnector(t *testing.T) {
	conn := &fakeConnector{}
	ob := newOutbox(&fakeMatcher{}, conn, message.UDPCodec{}, &interceptorList{}, logging.NewDefaultLoggerFactory().NewLogger("test"))
	ex := exchange.NewExchange(exchange.OriginLocal, testAddr("peer:1"))
	req := message.NewRequest(message.TypeConfirmable, message.CodeGET, 1, []byte{0x01})

	if err := ob.SendRequest(ex, req); err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if len(conn.sent) != 1 {
		t.Fatalf("expected one write, got %d", len(conn.sent))
	}
}

func TestOutboxSendRequestStopsAtInterceptorCancel(t *testing.T) {
	conn := &fakeConnector{}
	interceptors := &interceptorList{}
	interceptors.Add(recordingInterceptor{name: "block", cancel: true, calls: &[]string{}})
	ob := newOutbox(&fakeMatcher{}, conn, message.UDPCodec{}, interceptors, logging.NewDefaultLoggerFactory().NewLogger("test"))
	ex := exchange.NewExchange(exchange.OriginLocal, testAddr("peer:1"))
	req := message.NewRequest(message.TypeConfirmable, message.CodeGET, 1, nil)

	if err := ob.SendRequest(ex, req); err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if len(conn.sent) != 0 {
		t.Fatal("canceled send should never reach the connector")
	}
}

func TestOutboxSendSetsContextOnEstablished(t *testing.T) {
	conn := &fakeConnector{}
	ob := newOutbox(&fakeMatcher{}, conn, message.UDPCodec{}, &interceptorList{}, logging.NewDefaultLoggerFactory().NewLogger("test"))
	ex := exchange.NewExchange(exchange.OriginLocal, testAddr("peer:1"))
	req := message.NewRequest(message.TypeConfirmable, message.CodeGET, 1, nil)

	if err := ob.SendRequest(ex, req); err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if _, ok := ex.Context(); !ok {
		t.Fatal("expected the exchange's correlation context to be set")
	}
}

func TestOutboxPropagatesMatcherError(t *testing.T) {
	m := &fakeMatcher{sendRequestErr: exchange.ErrRejectedDuplicateToken}
	conn := &fakeConnector{}
	ob := newOutbox(m, conn, message.UDPCodec{}, &interceptorList{}, logging.NewDefaultLoggerFactory().NewLogger("test"))
	ex := exchange.NewExchange(exchange.OriginLocal, testAddr("peer:1"))
	req := message.NewRequest(message.TypeConfirmable, message.CodeGET, 1, nil)

	if err := ob.SendRequest(ex, req); err != exchange.ErrRejectedDuplicateToken {
		t.Fatalf("SendRequest = %v, want ErrRejectedDuplicateToken", err)
	}
	if len(conn.sent) != 0 {
		t.Fatal("a rejected matcher registration should never reach the connector")
	}
}
