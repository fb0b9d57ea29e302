// Package connector implements the transport drivers the CoAP core
// composes with: connection-oriented byte I/O, scheme discovery and the
// raw-frame boundary between sockets and the Inbox. A Connector owns its
// socket(s) and read-loop goroutines; it knows nothing about CoAP message
// semantics, only about delivering and accepting opaque byte slices for a
// given peer.
//
// Four variants are provided, one per URI scheme:
//   - UDPConnector (coap://)       - datagram, RFC 7252 framing
//   - DTLSConnector (coaps://)     - datagram over an established DTLS session
//   - TCPConnector (coap+tcp://)   - stream, RFC 8323 framing
//   - TLSConnector (coaps+tcp://)  - stream over an established TLS session
package connector
