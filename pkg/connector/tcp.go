package connector

import (
	"io"
	"net"
	"sync"

	"github.com/backkem/coap/pkg/message"
	"github.com/pion/logging"
)

// TCPConnector provides the coap+tcp:// lower layer: a net.Listener plus
// one persistent net.Conn per peer, framed with RFC 8323's variable-length
// prefix (see message.FrameLength). It never establishes a correlation
// context.
type TCPConnector struct {
	listener net.Listener
	receiver RawDataReceiver
	closeCh  chan struct{}
	wg       sync.WaitGroup
	log      logging.LeveledLogger

	connsMu sync.RWMutex
	conns   map[string]*tcpConn

	mu        sync.RWMutex
	started   bool
	destroyed bool
}

type tcpConn struct {
	conn net.Conn
	mu   sync.Mutex // serializes writes
}

// TCPConfig configures a TCPConnector.
type TCPConfig struct {
	// Listener is an optional pre-existing Listener to use. If nil, a new
	// listener is created using ListenAddr.
	Listener net.Listener

	// ListenAddr is the address to listen on (e.g. ":5683"). Ignored if
	// Listener is provided.
	ListenAddr string

	// LoggerFactory creates the connector's scoped logger. Nil disables
	// logging.
	LoggerFactory logging.LoggerFactory
}

// NewTCPConnector creates a TCPConnector. Call SetRawDataReceiver before
// Start.
func NewTCPConnector(config TCPConfig) (*TCPConnector, error) {
	t := &TCPConnector{
		listener: config.Listener,
		closeCh:  make(chan struct{}),
		conns:    make(map[string]*tcpConn),
	}

	if config.LoggerFactory != nil {
		t.log = config.LoggerFactory.NewLogger("connector-tcp")
	}

	if t.listener == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0"
		}
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		t.listener = listener
	}

	return t, nil
}

// SetRawDataReceiver installs the Inbox callback.
func (t *TCPConnector) SetRawDataReceiver(receiver RawDataReceiver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receiver = receiver
}

// Start begins accepting connections.
func (t *TCPConnector) Start() error {
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
		t.log.Infof("starting TCP connector on %s", t.listener.Addr())
	}

	t.wg.Add(1)
	go t.acceptLoop()

	return nil
}

// Stop closes the listener and all tracked connections.
func (t *TCPConnector) Stop() error {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return ErrClosed
	}
	t.started = false
	t.mu.Unlock()

	if t.log != nil {
		t.log.Info("stopping TCP connector")
	}

	close(t.closeCh)
	t.listener.Close()

	t.connsMu.Lock()
	for _, c := range t.conns {
		c.conn.Close()
	}
	t.conns = make(map[string]*tcpConn)
	t.connsMu.Unlock()

	t.wg.Wait()
	return nil
}

// Destroy stops the connector if running and marks it unusable.
func (t *TCPConnector) Destroy() error {
	t.mu.Lock()
	started := t.started
	t.destroyed = true
	t.mu.Unlock()

	if started {
		return t.Stop()
	}
	return nil
}

// Send writes data, prefixed by nothing further (data is already a
// complete RFC 8323 frame produced by message.TCPCodec), to a persistent
// connection for peer, dialing one if none exists yet. TCP establishes no
// session context, so onEstablished fires immediately with nil.
func (t *TCPConnector) Send(data []byte, peer net.Addr, onEstablished ContextEstablishedFunc) error {
	t.mu.RLock()
	destroyed := t.destroyed
	t.mu.RUnlock()
	if destroyed {
		return ErrDestroyed
	}
	if peer == nil {
		return ErrInvalidAddress
	}

	c, err := t.getOrCreateConn(peer)
	if err != nil {
		return err
	}

	c.mu.Lock()
	_, err = c.conn.Write(data)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	if onEstablished != nil {
		onEstablished(nil)
	}
	return nil
}

// LocalAddr returns the address the connector is listening on.
func (t *TCPConnector) LocalAddr() net.Addr {
	return t.listener.Addr()
}

// Scheme reports coap+tcp://.
func (t *TCPConnector) Scheme() message.Scheme {
	return message.SchemeCoAPTCP
}

// IsSchemeSupported reports true only for coap+tcp://.
func (t *TCPConnector) IsSchemeSupported(scheme message.Scheme) bool {
	return scheme == message.SchemeCoAPTCP
}

func (t *TCPConnector) acceptLoop() {
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

		t.wg.Add(1)
		go t.handleConn(conn)
	}
}

func (t *TCPConnector) handleConn(conn net.Conn) {
	defer t.wg.Done()

	c := &tcpConn{conn: conn}

	remoteAddr := conn.RemoteAddr().String()
	t.connsMu.Lock()
	t.conns[remoteAddr] = c
	t.connsMu.Unlock()

	defer func() {
		conn.Close()
		t.connsMu.Lock()
		delete(t.conns, remoteAddr)
		t.connsMu.Unlock()
	}()

	t.readFrames(conn)
}

// readFrames pulls one RFC 8323 frame at a time off conn and delivers
// each as a RawData, buffering partial reads across calls.
func (t *TCPConnector) readFrames(conn net.Conn) {
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
			t.receiver(&RawData{Data: data, Peer: conn.RemoteAddr()})
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
				t.log.Warnf("TCP read error: %v", err)
			}
			return
		}
	}
}

// getOrCreateConn returns the tracked connection for peer, dialing one if
// none exists.
func (t *TCPConnector) getOrCreateConn(peer net.Addr) (*tcpConn, error) {
	addrStr := peer.String()

	t.connsMu.RLock()
	c, ok := t.conns[addrStr]
	t.connsMu.RUnlock()
	if ok {
		return c, nil
	}

	conn, err := net.Dial("tcp", addrStr)
	if err != nil {
		return nil, err
	}

	c = &tcpConn{conn: conn}

	t.connsMu.Lock()
	if existing, ok := t.conns[addrStr]; ok {
		t.connsMu.Unlock()
		conn.Close()
		return existing, nil
	}
	t.conns[addrStr] = c
	t.connsMu.Unlock()

	t.wg.Add(1)
	go t.handleConn(conn)

	return c, nil
}
