package connector

import (
	"crypto/tls"
	"io"
	"net"
	"sync"

	"github.com/backkem/coap/pkg/message"
	"github.com/pion/logging"
)

// TLSConnector provides the coaps+tcp:// lower layer: identical framing to
// TCPConnector (RFC 8323 length-prefixed frames) over a *tls.Conn instead
// of a bare net.Conn. The pack's DTLS/WebRTC dependencies have no TLS-over-
// TCP counterpart, so this connector is grounded on stdlib crypto/tls
// directly (see DESIGN.md) rather than forcing a pack dependency that
// doesn't fit.
type TLSConnector struct {
	listener net.Listener
	dialAddr string
	tlsConf  *tls.Config
	receiver RawDataReceiver
	closeCh  chan struct{}
	wg       sync.WaitGroup
	log      logging.LeveledLogger

	connsMu sync.RWMutex
	conns   map[string]*tls.Conn

	mu        sync.RWMutex
	started   bool
	destroyed bool
}

// TLSConfig configures a TLSConnector.
type TLSConfig struct {
	// ListenAddr is the address to listen on (e.g. ":5684").
	ListenAddr string

	// Config carries the certificates and cipher suite policy for both
	// accepting and dialing TLS sessions. Required.
	Config *tls.Config

	// LoggerFactory creates the connector's scoped logger. Nil disables
	// logging.
	LoggerFactory logging.LoggerFactory
}

// NewTLSConnector creates a TLSConnector. Call SetRawDataReceiver before
// Start.
func NewTLSConnector(config TLSConfig) (*TLSConnector, error) {
	addr := config.ListenAddr
	if addr == "" {
		addr = ":0"
	}

	listener, err := tls.Listen("tcp", addr, config.Config)
	if err != nil {
		return nil, err
	}

	t := &TLSConnector{
		listener: listener,
		tlsConf:  config.Config,
		closeCh:  make(chan struct{}),
		conns:    make(map[string]*tls.Conn),
	}

	if config.LoggerFactory != nil {
		t.log = config.LoggerFactory.NewLogger("connector-tls")
	}

	return t, nil
}

// SetRawDataReceiver installs the Inbox callback.
func (t *TLSConnector) SetRawDataReceiver(receiver RawDataReceiver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receiver = receiver
}

// Start begins accepting TLS connections.
func (t *TLSConnector) Start() error {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return ErrDestroyed
	}
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	if t.receiver == nil {
		t.mu.Unlock()
		return ErrNoReceiver
	}
	t.started = true
	t.mu.Unlock()

	if t.log != nil {
		t.log.Infof("starting TLS connector on %s", t.listener.Addr())
	}

	t.wg.Add(1)
	go t.acceptLoop()

	return nil
}

// Stop closes the listener and all tracked connections.
func (t *TLSConnector) Stop() error {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return ErrClosed
	}
	t.started = false
	t.mu.Unlock()

	if t.log != nil {
		t.log.Info("stopping TLS connector")
	}

	close(t.closeCh)
	t.listener.Close()

	t.connsMu.Lock()
	for _, c := range t.conns {
		c.Close()
	}
	t.conns = make(map[string]*tls.Conn)
	t.connsMu.Unlock()

	t.wg.Wait()
	return nil
}

// Destroy stops the connector if running and marks it unusable.
func (t *TLSConnector) Destroy() error {
	t.mu.Lock()
	started := t.started
	t.destroyed = true
	t.mu.Unlock()

	if started {
		return t.Stop()
	}
	return nil
}

// Send writes an RFC 8323 frame to peer's TLS session, dialing (and
// handshaking) one if none exists yet. onEstablished fires once the
// handshake completes, carrying the connection state's TLS-unique channel
// binding as CorrelationContext.
func (t *TLSConnector) Send(data []byte, peer net.Addr, onEstablished ContextEstablishedFunc) error {
	t.mu.RLock()
	destroyed := t.destroyed
	t.mu.RUnlock()
	if destroyed {
		return ErrDestroyed
	}
	if peer == nil {
		return ErrInvalidAddress
	}

	conn, err := t.getOrDialConn(peer)
	if err != nil {
		return err
	}

	if _, err := conn.Write(data); err != nil {
		return err
	}

	if onEstablished != nil {
		onEstablished(tlsCorrelationContext(conn))
	}
	return nil
}

// LocalAddr returns the address the connector is listening on.
func (t *TLSConnector) LocalAddr() net.Addr {
	return t.listener.Addr()
}

// Scheme reports coaps+tcp://.
func (t *TLSConnector) Scheme() message.Scheme {
	return message.SchemeCoAPsTCP
}

// IsSchemeSupported reports true only for coaps+tcp://.
func (t *TLSConnector) IsSchemeSupported(scheme message.Scheme) bool {
	return scheme == message.SchemeCoAPsTCP
}

// tlsCorrelationContext identifies a TLS session by its connection state's
// channel binding when available, falling back to the *tls.Conn's
// identity; either way, two distinct sessions never compare equal.
func tlsCorrelationContext(conn *tls.Conn) CorrelationContext {
	if unique := conn.ConnectionState().TLSUnique; len(unique) > 0 {
		return string(unique)
	}
	return CorrelationContext(conn)
}

func (t *TLSConnector) acceptLoop() {
	defer t.wg.Done()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.closeCh:
				return
			default:
				continue
			}
		}

		tlsConn, ok := conn.(*tls.Conn)
		if !ok {
			conn.Close()
			continue
		}

		t.connsMu.Lock()
		t.conns[tlsConn.RemoteAddr().String()] = tlsConn
		t.connsMu.Unlock()

		t.wg.Add(1)
		go t.readFrames(tlsConn)
	}
}

func (t *TLSConnector) readFrames(conn *tls.Conn) {
	defer t.wg.Done()
	defer func() {
		conn.Close()
		t.connsMu.Lock()
		delete(t.conns, conn.RemoteAddr().String())
		t.connsMu.Unlock()
	}()

	var buf []byte
	chunk := make([]byte, 4096)

	for {
		if n, ok := message.FrameLength(buf); ok && n <= len(buf) {
			data := make([]byte, n)
			copy(data, buf[:n])
			buf = buf[n:]

			if t.log != nil {
				t.log.Debugf("received %d byte frame from %v", n, conn.RemoteAddr())
			}
			t.receiver(&RawData{
				Data:     data,
				Peer:     conn.RemoteAddr(),
				Context:  tlsCorrelationContext(conn),
				IsSecure: true,
			})
			continue
		}

		select {
		case <-t.closeCh:
			return
		default:
		}

		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			if err != io.EOF && t.log != nil {
				t.log.Warnf("TLS read error: %v", err)
			}
			return
		}
	}
}

func (t *TLSConnector) getOrDialConn(peer net.Addr) (*tls.Conn, error) {
	addrStr := peer.String()

	t.connsMu.RLock()
	conn, ok := t.conns[addrStr]
	t.connsMu.RUnlock()
	if ok {
		return conn, nil
	}

	conn, err := tls.Dial("tcp", addrStr, t.tlsConf)
	if err != nil {
		return nil, err
	}

	t.connsMu.Lock()
	if existing, ok := t.conns[addrStr]; ok {
		t.connsMu.Unlock()
		conn.Close()
		return existing, nil
	}
	t.conns[addrStr] = conn
	t.connsMu.Unlock()

	t.wg.Add(1)
	go t.readFrames(conn)

	return conn, nil
}
