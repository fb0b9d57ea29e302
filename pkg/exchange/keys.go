package exchange

import "net"

// KeyMID identifies an exchange by message ID and remote peer. Used to
// match ACK/RST and to detect retransmitted CON/NON requests (RFC 7252
// Section 4.5, spec.md Section 3).
type KeyMID struct {
	Peer string
	MID  uint16
}

// KeyToken identifies an exchange by token and remote peer. Used to match
// responses to outstanding requests (RFC 7252 Section 5.3.1).
type KeyToken struct {
	Peer  string
	Token string
}

// KeyURI identifies an observe relation by the observed resource's URI and
// the token the client registered it under (RFC 7641 Section 3.1).
type KeyURI struct {
	URI   string
	Token string
}

// NewKeyMID builds the KeyMID for a message with the given MID from peer.
func NewKeyMID(peer net.Addr, mid uint16) KeyMID {
	return KeyMID{Peer: addrString(peer), MID: mid}
}

// NewKeyToken builds the KeyToken for a message with the given token from
// peer.
func NewKeyToken(peer net.Addr, token []byte) KeyToken {
	return KeyToken{Peer: addrString(peer), Token: string(token)}
}

// NewKeyURI builds the KeyURI for an observe registration at path on peer,
// under the given token.
func NewKeyURI(peer net.Addr, path string, token []byte) KeyURI {
	return KeyURI{URI: addrString(peer) + path, Token: string(token)}
}

func addrString(peer net.Addr) string {
	if peer == nil {
		return ""
	}
	return peer.String()
}
