package connectortest

import (
	"github.com/backkem/coap/pkg/connector"
	"github.com/pion/logging"
)

// Pair is a connected pair of in-memory UDP-scheme connectors plus the
// Pipe carrying traffic between them, for tests that want to exercise a
// real connector.Connector without opening sockets.
type Pair struct {
	A, B *connector.UDPConnector
	Pipe *Pipe
}

// NewPair builds a connected Pair. Callers still call SetRawDataReceiver
// and Start on each side, exactly as they would for a real UDPConnector.
func NewPair(loggerFactory logging.LoggerFactory) (*Pair, error) {
	connA, connB, pipe := PacketConns()

	a, err := connector.NewUDPConnector(connector.UDPConfig{
		Conn:          connA,
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		pipe.Close()
		return nil, err
	}

	b, err := connector.NewUDPConnector(connector.UDPConfig{
		Conn:          connB,
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		pipe.Close()
		return nil, err
	}

	return &Pair{A: a, B: b, Pipe: pipe}, nil
}

// Close stops both connectors and the underlying pipe.
func (p *Pair) Close() error {
	p.A.Destroy()
	p.B.Destroy()
	return p.Pipe.Close()
}
