package connector

import (
	"net"

	"github.com/backkem/coap/pkg/message"
)

// CorrelationContext is an opaque session identity a connector may attach
// to an inbound frame and hand back through a ContextEstablishedFunc. The
// core never inspects its contents: it stores the value on the Exchange
// and later compares it by equality to detect cross-session response
// injection (spec scenario F). UDP and TCP connectors never set one; DTLS
// and TLS connectors set it to the established session's identity once
// the handshake completes.
type CorrelationContext any

// RawData is one inbound frame delivered to a RawDataReceiver. Peer and
// Peer.Network() are always populated; Connector implementations that
// cannot provide a port-bearing source (none in this package) would be a
// programming error per spec Section 7.1.
type RawData struct {
	Data     []byte
	Peer     net.Addr
	Context  CorrelationContext
	IsSecure bool
}

// RawDataReceiver is the Inbox-side callback a Connector delivers inbound
// frames to. Implementations must return quickly: the core's Inbox
// reposts to the protocol stage immediately and does no parsing on the
// connector's own I/O goroutine.
type RawDataReceiver func(frame *RawData)

// ContextEstablishedFunc is invoked at most once per Send call, when the
// underlying session context (e.g. a DTLS epoch) becomes available. For
// connectors with no handshake it fires synchronously with a nil context.
type ContextEstablishedFunc func(ctx CorrelationContext)

// Connector is the transport driver boundary the CoAP core depends on but
// does not implement. One Connector instance binds to exactly one scheme;
// the Endpoint picks its Matcher/Stack variant from Connector.Scheme() at
// construction time.
type Connector interface {
	// Start begins accepting/reading from the underlying socket(s).
	Start() error
	// Stop releases the socket(s) but leaves the Connector restartable.
	Stop() error
	// Destroy permanently releases all resources. The Connector cannot be
	// started again afterward.
	Destroy() error

	// Send writes data to peer. onEstablished, if non-nil, is invoked once
	// a correlation context for this peer becomes available (immediately,
	// with a nil context, for connectors that never establish one).
	Send(data []byte, peer net.Addr, onEstablished ContextEstablishedFunc) error

	// SetRawDataReceiver installs the Inbox callback for inbound frames.
	// Must be called before Start.
	SetRawDataReceiver(receiver RawDataReceiver)

	// LocalAddr returns the address the connector is bound to.
	LocalAddr() net.Addr

	// Scheme returns the URI scheme this connector's wire format and
	// security properties implement.
	Scheme() message.Scheme

	// IsSchemeSupported reports whether this connector can serve scheme.
	IsSchemeSupported(scheme message.Scheme) bool
}
