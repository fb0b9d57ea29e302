package connector

import (
	"net"
	"sync"

	"github.com/backkem/coap/pkg/message"
	"github.com/pion/dtls/v3"
	"github.com/pion/logging"
)

// DTLSConnector provides the coaps:// lower layer. It behaves like
// UDPConnector at the framing level (one dtls.Conn.Read returns one
// complete CoAP-over-UDP datagram, no length prefix needed, since the DTLS
// record layer already preserves message boundaries) but, unlike plain
// UDP, each peer gets its own persistent *dtls.Conn produced by the
// handshake; this module never performs the handshake itself, only hands
// the core a CorrelationContext once dtls.Config's handshake completes,
// per spec.md's "security handshake is delegated to the secure connector"
// non-goal.
type DTLSConnector struct {
	listener net.Listener
	dial     func(raddr net.Addr) (net.Conn, error)
	receiver RawDataReceiver
	closeCh  chan struct{}
	wg       sync.WaitGroup
	log      logging.LeveledLogger

	connsMu sync.RWMutex
	conns   map[string]net.Conn

	mu        sync.RWMutex
	started   bool
	destroyed bool
}

// DTLSConfig configures a DTLSConnector.
type DTLSConfig struct {
	// ListenAddr is the address to listen on (e.g. ":5684").
	ListenAddr string

	// Config carries the certificates/PSK callbacks/cipher suites for both
	// accepting and dialing DTLS sessions. Required.
	Config *dtls.Config

	// LoggerFactory creates the connector's scoped logger. Nil disables
	// logging.
	LoggerFactory logging.LoggerFactory
}

// NewDTLSConnector creates a DTLSConnector bound to ListenAddr. Call
// SetRawDataReceiver before Start.
func NewDTLSConnector(config DTLSConfig) (*DTLSConnector, error) {
	addr := config.ListenAddr
	if addr == "" {
		addr = ":0"
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}

	listener, err := dtls.Listen("udp", udpAddr, config.Config)
	if err != nil {
		return nil, err
	}

	d := &DTLSConnector{
		listener: listener,
		closeCh:  make(chan struct{}),
		conns:    make(map[string]net.Conn),
		dial: func(raddr net.Addr) (net.Conn, error) {
			return dtls.Dial("udp", raddr.(*net.UDPAddr), config.Config)
		},
	}

	if config.LoggerFactory != nil {
		d.log = config.LoggerFactory.NewLogger("connector-dtls")
	}

	return d, nil
}

// SetRawDataReceiver installs the Inbox callback.
func (d *DTLSConnector) SetRawDataReceiver(receiver RawDataReceiver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.receiver = receiver
}

// Start begins accepting DTLS sessions.
func (d *DTLSConnector) Start() error {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return ErrDestroyed
	}
	if d.started {
		d.mu.Unlock()
		return ErrAlreadyStarted
	}
	if d.receiver == nil {
		d.mu.Unlock()
		return ErrNoReceiver
	}
	d.started = true
	d.mu.Unlock()

	if d.log != nil {
		d.log.Infof("starting DTLS connector on %s", d.listener.Addr())
	}

	d.wg.Add(1)
	go d.acceptLoop()

	return nil
}

// Stop closes the listener and all tracked sessions.
func (d *DTLSConnector) Stop() error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return ErrClosed
	}
	d.started = false
	d.mu.Unlock()

	if d.log != nil {
		d.log.Info("stopping DTLS connector")
	}

	close(d.closeCh)
	d.listener.Close()

	d.connsMu.Lock()
	for _, c := range d.conns {
		c.Close()
	}
	d.conns = make(map[string]net.Conn)
	d.connsMu.Unlock()

	d.wg.Wait()
	return nil
}

// Destroy stops the connector if running and marks it unusable.
func (d *DTLSConnector) Destroy() error {
	d.mu.Lock()
	started := d.started
	d.destroyed = true
	d.mu.Unlock()

	if started {
		return d.Stop()
	}
	return nil
}

// Send writes data as one DTLS record to peer's session, dialing (and
// handshaking) one if none exists yet. onEstablished fires once the
// session is ready, with the *dtls.Conn's identity as CorrelationContext.
func (d *DTLSConnector) Send(data []byte, peer net.Addr, onEstablished ContextEstablishedFunc) error {
	d.mu.RLock()
	destroyed := d.destroyed
	d.mu.RUnlock()
	if destroyed {
		return ErrDestroyed
	}
	if peer == nil {
		return ErrInvalidAddress
	}

	conn, err := d.getOrDialConn(peer)
	if err != nil {
		return err
	}

	if _, err := conn.Write(data); err != nil {
		return err
	}

	if onEstablished != nil {
		onEstablished(CorrelationContext(conn))
	}
	return nil
}

// LocalAddr returns the address the connector is listening on.
func (d *DTLSConnector) LocalAddr() net.Addr {
	return d.listener.Addr()
}

// Scheme reports coaps://.
func (d *DTLSConnector) Scheme() message.Scheme {
	return message.SchemeCoAPs
}

// IsSchemeSupported reports true only for coaps://.
func (d *DTLSConnector) IsSchemeSupported(scheme message.Scheme) bool {
	return scheme == message.SchemeCoAPs
}

func (d *DTLSConnector) acceptLoop() {
	defer d.wg.Done()

	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.closeCh:
				return
			default:
				continue
			}
		}

		d.connsMu.Lock()
		d.conns[conn.RemoteAddr().String()] = conn
		d.connsMu.Unlock()

		d.wg.Add(1)
		go d.readLoop(conn)
	}
}

func (d *DTLSConnector) readLoop(conn net.Conn) {
	defer d.wg.Done()
	defer func() {
		conn.Close()
		d.connsMu.Lock()
		delete(d.conns, conn.RemoteAddr().String())
		d.connsMu.Unlock()
	}()

	buf := make([]byte, DefaultUDPDatagramSize)
	for {
		select {
		case <-d.closeCh:
			return
		default:
		}

		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		d.receiver(&RawData{
			Data:     data,
			Peer:     conn.RemoteAddr(),
			Context:  CorrelationContext(conn),
			IsSecure: true,
		})
	}
}

func (d *DTLSConnector) getOrDialConn(peer net.Addr) (net.Conn, error) {
	addrStr := peer.String()

	d.connsMu.RLock()
	conn, ok := d.conns[addrStr]
	d.connsMu.RUnlock()
	if ok {
		return conn, nil
	}

	conn, err := d.dial(peer)
	if err != nil {
		return nil, err
	}

	d.connsMu.Lock()
	if existing, ok := d.conns[addrStr]; ok {
		d.connsMu.Unlock()
		conn.Close()
		return existing, nil
	}
	d.conns[addrStr] = conn
	d.connsMu.Unlock()

	d.wg.Add(1)
	go d.readLoop(conn)

	return conn, nil
}
