package exchange

import (
	"crypto/rand"
	"net"

	"github.com/backkem/coap/pkg/config"
	"github.com/backkem/coap/pkg/connector"
	"github.com/backkem/coap/pkg/message"
)

// TcpMatcher implements Matcher for stream connectors (RFC 8323). Stream
// framing carries no message ID, so there is no KeyMID table, no
// duplicate-CON detection, and no RST for an unmatched response.
type TcpMatcher struct {
	store *Store
	cfg   *config.Config
}

// NewTcpMatcher creates a TcpMatcher backed by store, using cfg for the
// token size limit.
func NewTcpMatcher(store *Store, cfg *config.Config) *TcpMatcher {
	return &TcpMatcher{store: store, cfg: cfg}
}

func (m *TcpMatcher) allocToken() ([]byte, error) {
	n := m.cfg.TokenSizeLimit
	if n <= 0 {
		return nil, nil
	}
	token := make([]byte, n)
	if _, err := rand.Read(token); err != nil {
		return nil, err
	}
	return token, nil
}

// SendRequest implements Matcher.
func (m *TcpMatcher) SendRequest(ex *Exchange, req *message.Request) error {
	if req.Token == nil {
		token, err := m.allocToken()
		if err != nil {
			return err
		}
		req.Token = token
	}
	ex.SetRequest(req)
	return m.store.RegisterToken(NewKeyToken(ex.RemoteAddr, req.Token), ex)
}

// SendResponse implements Matcher.
func (m *TcpMatcher) SendResponse(ex *Exchange, resp *message.Response) error {
	if resp.Token == nil {
		if req := ex.Request(); req != nil {
			resp.Token = req.Token
		}
	}
	ex.SetResponse(resp)
	return m.store.RegisterToken(NewKeyToken(ex.RemoteAddr, resp.Token), ex)
}

// SendEmpty implements Matcher. CoAP-over-TCP has no empty ACK/RST
// message at this layer, so this is always rejected.
func (m *TcpMatcher) SendEmpty(ex *Exchange, empty *message.Empty) error {
	return ErrUnsupportedOperation
}

// ReceiveRequest implements Matcher. Every inbound request with an unseen
// token starts a new Exchange; a seen token means the peer resent the
// same request on the connection, e.g. after a transient stall.
func (m *TcpMatcher) ReceiveRequest(req *message.Request, peer net.Addr) (*Exchange, bool) {
	if req.Token != nil {
		if ex, ok := m.store.FindByToken(NewKeyToken(peer, req.Token)); ok {
			return ex, true
		}
	}

	ex := NewExchange(OriginRemote, peer)
	ex.SetRequest(req)
	if req.Token != nil {
		_ = m.store.RegisterToken(NewKeyToken(peer, req.Token), ex)
	}
	return ex, false
}

// ReceiveResponse implements Matcher.
func (m *TcpMatcher) ReceiveResponse(resp *message.Response, peer net.Addr, ctx connector.CorrelationContext) (*Exchange, error) {
	ex, ok := m.store.FindByToken(NewKeyToken(peer, resp.Token))
	if !ok {
		return nil, ErrExchangeNotFound
	}
	if err := matchContext(ex, ctx); err != nil {
		return nil, err
	}
	return ex, nil
}

// ReceiveEmpty implements Matcher. Always unmatched: there is no empty
// message over a stream connector.
func (m *TcpMatcher) ReceiveEmpty(empty *message.Empty, peer net.Addr) (*Exchange, bool) {
	return nil, false
}
