package connectortest

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// NetworkCondition configures network behavior simulation for a Pipe.
type NetworkCondition struct {
	// DropRate is the probability of dropping a packet (0.0-1.0).
	DropRate float64

	// DelayMin and DelayMax bound an additional per-packet delay, uniformly
	// distributed between them.
	DelayMin time.Duration
	DelayMax time.Duration

	// DuplicateRate is the probability of sending a packet twice.
	DuplicateRate float64
}

// Pipe provides bidirectional in-memory packet communication between two
// peers, wrapping pion's test.Bridge. Messages are delivered automatically
// in a background goroutine unless SetAutoProcess(false) is called, in
// which case the test must drive delivery with Tick/Process.
type Pipe struct {
	bridge *test.Bridge

	mu              sync.RWMutex
	condition       NetworkCondition
	closed          bool
	rng             *rand.Rand
	autoProcess     bool
	processInterval time.Duration
	stopCh          chan struct{}
	wg              sync.WaitGroup
}

// NewPipe creates a pipe with auto-processing enabled at a 1ms tick.
func NewPipe() *Pipe {
	p := &Pipe{
		bridge:          test.NewBridge(),
		rng:             rand.New(rand.NewSource(1)),
		autoProcess:     true,
		processInterval: time.Millisecond,
		stopCh:          make(chan struct{}),
	}
	p.startAutoProcess()
	return p
}

func (p *Pipe) startAutoProcess() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.processInterval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.bridge.Tick()
			}
		}
	}()
}

// SetAutoProcess enables or disables automatic message delivery.
func (p *Pipe) SetAutoProcess(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.autoProcess == enabled {
		return
	}
	p.autoProcess = enabled
	if enabled {
		p.stopCh = make(chan struct{})
		p.startAutoProcess()
	} else {
		close(p.stopCh)
		p.wg.Wait()
	}
}

// SetCondition configures network condition simulation applied in both
// directions.
func (p *Pipe) SetCondition(cond NetworkCondition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.condition = cond
}

// Tick delivers one queued packet in each direction, if available.
func (p *Pipe) Tick() int {
	return p.bridge.Tick()
}

// Process delivers every queued packet.
func (p *Pipe) Process() int {
	count := 0
	for {
		n := p.Tick()
		if n == 0 {
			return count
		}
		count += n
	}
}

// Close shuts down auto-processing and both underlying connections.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.autoProcess {
		close(p.stopCh)
	}
	p.mu.Unlock()

	p.wg.Wait()

	err0 := p.bridge.GetConn0().Close()
	err1 := p.bridge.GetConn1().Close()
	if err0 != nil {
		return err0
	}
	return err1
}

// PipeAddr implements net.Addr for a Pipe endpoint.
type PipeAddr struct {
	ID int // 0 or 1
}

// Network returns "pipe".
func (a PipeAddr) Network() string { return "pipe" }

// String returns a string representation of the address.
func (a PipeAddr) String() string { return fmt.Sprintf("pipe:%d", a.ID) }

// packetConn adapts one side of a Pipe to net.PacketConn so it can be
// handed directly to connector.NewUDPConnector as an injected Conn.
type packetConn struct {
	conn     net.Conn
	localID  int
	peerAddr net.Addr
	pipe     *Pipe
}

func (c *packetConn) ReadFrom(b []byte) (n int, addr net.Addr, err error) {
	n, err = c.conn.Read(b)
	return n, c.peerAddr, err
}

func (c *packetConn) WriteTo(b []byte, addr net.Addr) (n int, err error) {
	c.pipe.mu.RLock()
	cond := c.pipe.condition
	rng := c.pipe.rng
	c.pipe.mu.RUnlock()

	if cond.DropRate > 0 && rng.Float64() < cond.DropRate {
		return len(b), nil
	}

	if cond.DelayMax > 0 {
		delay := cond.DelayMin
		if cond.DelayMax > cond.DelayMin {
			delay += time.Duration(rng.Int63n(int64(cond.DelayMax - cond.DelayMin)))
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}

	if cond.DuplicateRate > 0 && rng.Float64() < cond.DuplicateRate {
		if _, err := c.conn.Write(b); err != nil {
			return 0, err
		}
	}

	return c.conn.Write(b)
}

func (c *packetConn) Close() error                       { return c.conn.Close() }
func (c *packetConn) LocalAddr() net.Addr                { return PipeAddr{ID: c.localID} }
func (c *packetConn) SetDeadline(t time.Time) error      { return c.conn.SetDeadline(t) }
func (c *packetConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *packetConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

var _ net.PacketConn = (*packetConn)(nil)

// PacketConns returns a connected pair of net.PacketConns backed by a new
// Pipe, suitable for connector.UDPConfig.Conn on both sides of a test.
func PacketConns() (a, b net.PacketConn, pipe *Pipe) {
	p := NewPipe()
	a = &packetConn{conn: p.bridge.GetConn0(), localID: 0, peerAddr: PipeAddr{ID: 1}, pipe: p}
	b = &packetConn{conn: p.bridge.GetConn1(), localID: 1, peerAddr: PipeAddr{ID: 0}, pipe: p}
	return a, b, p
}
