package connector

import (
	"fmt"
	"net"

	"github.com/pion/logging"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Well-known CoAP multicast addresses (RFC 7252 Section 12.8). Joining
// these groups lets a UDPConnector receive multicast requests; acting on
// them as a resource directory is explicitly out of scope (spec.md
// Non-goals); this is socket-level membership only.
var (
	IPv4AllCoAPNodes = net.IPv4(224, 0, 1, 187)
	IPv6LinkLocal    = net.ParseIP("ff02::fd")
	IPv6SiteLocal    = net.ParseIP("ff05::fd")
)

// joinMulticastGroups joins conn to every group in groups, using the
// golang.org/x/net ipv4/ipv6 packet-conn wrappers to issue the
// JoinGroup(nil, group) syscall on every configured multicast interface.
func joinMulticastGroups(conn net.PacketConn, groups []net.Addr, log logging.LeveledLogger) error {
	var firstErr error
	for _, g := range groups {
		ip, err := multicastIP(g)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		if ip.To4() != nil {
			p := ipv4.NewPacketConn(conn)
			if err := p.JoinGroup(nil, &net.UDPAddr{IP: ip}); err != nil {
				if log != nil {
					log.Warnf("joining IPv4 multicast group %s: %v", ip, err)
				}
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
		} else {
			p := ipv6.NewPacketConn(conn)
			if err := p.JoinGroup(nil, &net.UDPAddr{IP: ip}); err != nil {
				if log != nil {
					log.Warnf("joining IPv6 multicast group %s: %v", ip, err)
				}
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
		}

		if log != nil {
			log.Infof("joined multicast group %s", ip)
		}
	}
	return firstErr
}

// multicastIP extracts the IP from a net.Addr that is either a
// *net.UDPAddr or an *net.IPAddr.
func multicastIP(a net.Addr) (net.IP, error) {
	switch v := a.(type) {
	case *net.UDPAddr:
		return v.IP, nil
	case *net.IPAddr:
		return v.IP, nil
	default:
		return nil, fmt.Errorf("connector: unsupported multicast address type %T", a)
	}
}
