package connector

import (
	"net"
	"sync"
	"time"

	"github.com/backkem/coap/pkg/message"
	"github.com/pion/logging"
)

// DefaultUDPDatagramSize is the default maximum size of a single CoAP-over-
// UDP datagram (RFC 7252 Section 4.6 recommends staying under the IP MTU to
// avoid fragmentation; 1152 bytes keeps a 1280-byte IPv6 MTU message inside
// a single fragment after header overhead).
const DefaultUDPDatagramSize = 1152

// UDPConnector provides the coap:// lower layer: a bare net.PacketConn read
// loop delivering one RawData per datagram. It never establishes a
// correlation context.
type UDPConnector struct {
	conn         net.PacketConn
	receiver     RawDataReceiver
	datagramSize int
	closeCh      chan struct{}
	wg           sync.WaitGroup
	log          logging.LeveledLogger

	multicastGroups []net.Addr

	mu        sync.RWMutex
	started   bool
	destroyed bool
}

// UDPConfig configures a UDPConnector.
type UDPConfig struct {
	// Conn is an optional pre-existing PacketConn to use. If nil, a new
	// connection is created using ListenAddr.
	Conn net.PacketConn

	// ListenAddr is the address to listen on (e.g. ":5683"). Ignored if
	// Conn is provided.
	ListenAddr string

	// DatagramSize bounds the size of both inbound reads and outbound
	// sends. Zero uses DefaultUDPDatagramSize.
	DatagramSize int

	// MulticastGroups are joined at Start, so this connector also receives
	// requests sent to CoAP's well-known multicast addresses
	// (224.0.1.187, ff02::fd, ff05::fd). Resource-directory discovery atop
	// those groups is out of scope; only socket-level membership is
	// provided here.
	MulticastGroups []net.Addr

	// LoggerFactory creates the connector's scoped logger. Nil disables
	// logging.
	LoggerFactory logging.LoggerFactory
}

// NewUDPConnector creates a UDPConnector. Call SetRawDataReceiver before
// Start.
func NewUDPConnector(config UDPConfig) (*UDPConnector, error) {
	datagramSize := config.DatagramSize
	if datagramSize == 0 {
		datagramSize = DefaultUDPDatagramSize
	}

	u := &UDPConnector{
		conn:            config.Conn,
		datagramSize:    datagramSize,
		closeCh:         make(chan struct{}),
		multicastGroups: config.MulticastGroups,
	}

	if config.LoggerFactory != nil {
		u.log = config.LoggerFactory.NewLogger("connector-udp")
	}

	if u.conn == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0"
		}
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return nil, err
		}
		u.conn = conn
	}

	return u, nil
}

// SetRawDataReceiver installs the Inbox callback.
func (u *UDPConnector) SetRawDataReceiver(receiver RawDataReceiver) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.receiver = receiver
}

// Start begins the read loop and joins any configured multicast groups.
func (u *UDPConnector) Start() error {
	u.mu.Lock()
	if u.destroyed {
		u.mu.Unlock()
		return ErrDestroyed
	}
	if u.started {
		u.mu.Unlock()
		return ErrAlreadyStarted
	}
	if u.receiver == nil {
		u.mu.Unlock()
		return ErrNoReceiver
	}
	u.started = true
	u.mu.Unlock()

	if u.log != nil {
		u.log.Infof("starting UDP connector on %s", u.conn.LocalAddr())
	}

	if len(u.multicastGroups) > 0 {
		if err := joinMulticastGroups(u.conn, u.multicastGroups, u.log); err != nil && u.log != nil {
			u.log.Warnf("joining multicast groups: %v", err)
		}
	}

	u.wg.Add(1)
	go u.readLoop()

	return nil
}

// Stop closes the socket and waits for the read loop to exit. The
// connector can be reused via Start only by constructing a new instance
// (matches the teacher's one-shot Stop semantics in transport.UDP).
func (u *UDPConnector) Stop() error {
	u.mu.Lock()
	if !u.started {
		u.mu.Unlock()
		return ErrClosed
	}
	u.started = false
	u.mu.Unlock()

	if u.log != nil {
		u.log.Info("stopping UDP connector")
	}

	close(u.closeCh)
	u.conn.SetReadDeadline(time.Now())
	u.conn.Close()
	u.wg.Wait()

	return nil
}

// Destroy stops the connector if running and marks it unusable.
func (u *UDPConnector) Destroy() error {
	u.mu.Lock()
	started := u.started
	u.destroyed = true
	u.mu.Unlock()

	if started {
		return u.Stop()
	}
	return nil
}

// Send writes data to peer. UDP establishes no session, so onEstablished
// fires immediately with a nil context.
func (u *UDPConnector) Send(data []byte, peer net.Addr, onEstablished ContextEstablishedFunc) error {
	u.mu.RLock()
	destroyed := u.destroyed
	u.mu.RUnlock()
	if destroyed {
		return ErrDestroyed
	}
	if peer == nil {
		return ErrInvalidAddress
	}
	if len(data) > u.datagramSize {
		return ErrMessageTooLarge
	}

	if u.log != nil {
		u.log.Debugf("sending %d bytes to %v", len(data), peer)
	}

	if _, err := u.conn.WriteTo(data, peer); err != nil {
		if u.log != nil {
			u.log.Warnf("send failed: %v", err)
		}
		return err
	}

	if onEstablished != nil {
		onEstablished(nil)
	}
	return nil
}

// LocalAddr returns the address the connector is bound to.
func (u *UDPConnector) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

// Scheme reports coap://.
func (u *UDPConnector) Scheme() message.Scheme {
	return message.SchemeCoAP
}

// IsSchemeSupported reports true only for coap://.
func (u *UDPConnector) IsSchemeSupported(scheme message.Scheme) bool {
	return scheme == message.SchemeCoAP
}

func (u *UDPConnector) readLoop() {
	defer u.wg.Done()

	buf := make([]byte, u.datagramSize)

	for {
		select {
		case <-u.closeCh:
			return
		default:
		}

		n, addr, err := u.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-u.closeCh:
				return
			default:
				if u.log != nil {
					u.log.Warnf("UDP read error: %v", err)
				}
				continue
			}
		}
		if n == 0 {
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		if u.log != nil {
			u.log.Debugf("received %d bytes from %v", n, addr)
		}

		u.receiver(&RawData{Data: data, Peer: addr})
	}
}
