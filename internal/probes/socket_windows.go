//go:build windows

package probes

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// setTTL returns a control function setting the outgoing TTL (IPv4) or
// unicast hop limit (IPv6).
func setTTL(v6 bool, ttl int) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		if ttl <= 0 {
			return nil
		}
		var opErr error
		err := c.Control(func(fd uintptr) {
			if v6 {
				opErr = windows.SetsockoptInt(windows.Handle(fd), windows.IPPROTO_IPV6, windows.IPV6_UNICAST_HOPS, ttl)
				return
			}
			opErr = windows.SetsockoptInt(windows.Handle(fd), windows.IPPROTO_IP, windows.IP_TTL, ttl)
		})
		if err != nil {
			return err
		}
		return opErr
	}
}

// The runtime strips the IPv4 header on Windows, so replies carry no TTL.
func listen4(ttl int) (socket, error) {
	c, err := listenPacket("ip4:icmp", "0.0.0.0", setTTL(false, ttl))
	if err != nil {
		return nil, err
	}
	return &deadlineSocket{conn: c}, nil
}

func listen6(ttl int) (socket, error) {
	c, err := listenPacket("ip6:ipv6-icmp", "::", setTTL(true, ttl))
	if err != nil {
		return nil, err
	}
	return &deadlineSocket{conn: c, pc6: newIPv6PacketConn(c)}, nil
}
