package exchange

import (
	"crypto/rand"
	"encoding/binary"
	"net"
	"sync"

	"github.com/backkem/coap/pkg/config"
	"github.com/backkem/coap/pkg/connector"
	"github.com/backkem/coap/pkg/message"
)

// UdpMatcher implements Matcher for datagram connectors (RFC 7252). It
// assigns message IDs from a monotonically increasing 16-bit counter
// seeded randomly at construction, mirroring the teacher's unpredictable-
// starting-value convention for its own exchange ID counter.
type UdpMatcher struct {
	store *Store
	cfg   *config.Config

	mu      sync.Mutex
	nextMID uint16
}

// NewUdpMatcher creates a UdpMatcher backed by store, using cfg for the
// token size limit.
func NewUdpMatcher(store *Store, cfg *config.Config) *UdpMatcher {
	m := &UdpMatcher{store: store, cfg: cfg}
	var buf [2]byte
	if _, err := rand.Read(buf[:]); err == nil {
		m.nextMID = binary.BigEndian.Uint16(buf[:])
	}
	return m
}

func (m *UdpMatcher) allocMID() uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	mid := m.nextMID
	m.nextMID++
	return mid
}

func (m *UdpMatcher) allocToken() ([]byte, error) {
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
func (m *UdpMatcher) SendRequest(ex *Exchange, req *message.Request) error {
	if req.MID == 0 {
		req.MID = m.allocMID()
	}
	if req.Token == nil {
		token, err := m.allocToken()
		if err != nil {
			return err
		}
		req.Token = token
	}

	ex.SetRequest(req)

	if err := m.store.RegisterToken(NewKeyToken(ex.RemoteAddr, req.Token), ex); err != nil {
		return err
	}
	if req.Type == message.TypeConfirmable {
		if err := m.store.RegisterMID(NewKeyMID(ex.RemoteAddr, req.MID), ex); err != nil {
			return err
		}
	}
	return nil
}

// SendResponse implements Matcher.
func (m *UdpMatcher) SendResponse(ex *Exchange, resp *message.Response) error {
	if resp.MID == 0 {
		if req := ex.Request(); req != nil && resp.Type == message.TypeAcknowledgement {
			resp.MID = req.MID
		} else {
			resp.MID = m.allocMID()
		}
	}
	if resp.Token == nil {
		if req := ex.Request(); req != nil {
			resp.Token = req.Token
		}
	}

	ex.SetResponse(resp)

	if err := m.store.RegisterToken(NewKeyToken(ex.RemoteAddr, resp.Token), ex); err != nil {
		return err
	}
	if resp.Type == message.TypeConfirmable {
		if err := m.store.RegisterMID(NewKeyMID(ex.RemoteAddr, resp.MID), ex); err != nil {
			return err
		}
	}
	return nil
}

// SendEmpty implements Matcher. Empty ACKs/RSTs key off the MID they
// acknowledge, already registered by the peer's request; there is nothing
// further to register.
func (m *UdpMatcher) SendEmpty(ex *Exchange, empty *message.Empty) error {
	return nil
}

// ReceiveRequest implements Matcher.
func (m *UdpMatcher) ReceiveRequest(req *message.Request, peer net.Addr) (*Exchange, bool) {
	key := NewKeyMID(peer, req.MID)
	if ex, ok := m.store.FindByMID(key); ok {
		return ex, true
	}

	ex := NewExchange(OriginRemote, peer)
	ex.SetRequest(req)
	_ = m.store.RegisterMID(key, ex)
	if req.Token != nil {
		_ = m.store.RegisterToken(NewKeyToken(peer, req.Token), ex)
	}
	return ex, false
}

// ReceiveResponse implements Matcher.
func (m *UdpMatcher) ReceiveResponse(resp *message.Response, peer net.Addr, ctx connector.CorrelationContext) (*Exchange, error) {
	ex, ok := m.store.FindByToken(NewKeyToken(peer, resp.Token))
	if !ok {
		return nil, ErrExchangeNotFound
	}
	if err := matchContext(ex, ctx); err != nil {
		return nil, err
	}
	return ex, nil
}

// ReceiveEmpty implements Matcher.
func (m *UdpMatcher) ReceiveEmpty(empty *message.Empty, peer net.Addr) (*Exchange, bool) {
	return m.store.FindByMID(NewKeyMID(peer, empty.MID))
}
