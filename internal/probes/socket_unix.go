//go:build unix

package probes

import (
	"errors"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
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
				opErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_UNICAST_HOPS, ttl)
				return
			}
			opErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TTL, ttl)
		})
		if err != nil {
			return err
		}
		return opErr
	}
}

func listen4(ttl int) (socket, error) {
	c, err := listenPacket("ip4:icmp", "0.0.0.0", setTTL(false, ttl))
	if err != nil {
		return nil, err
	}
	ipc, ok := c.(*net.IPConn)
	if !ok {
		c.Close()
		return nil, fmt.Errorf("unexpected connection type %T", c)
	}
	rc, err := ipc.SyscallConn()
	if err != nil {
		ipc.Close()
		return nil, err
	}
	return &rawSocket4{conn: ipc, rc: rc}, nil
}

func listen6(ttl int) (socket, error) {
	c, err := listenPacket("ip6:ipv6-icmp", "::", setTTL(true, ttl))
	if err != nil {
		return nil, err
	}
	return &deadlineSocket{conn: c, pc6: newIPv6PacketConn(c)}, nil
}

// rawSocket4 receives with recvfrom(MSG_DONTWAIT) directly on the socket so
// that the IPv4 header, and with it the reply TTL, is preserved.
type rawSocket4 struct {
	conn *net.IPConn
	rc   syscall.RawConn
}

func (s *rawSocket4) writeTo(b []byte, dst net.Addr) error {
	_, err := s.conn.WriteTo(b, dst)
	return err
}

func (s *rawSocket4) poll(buf []byte) (datagram, error) {
	var (
		n    int
		rerr error
	)
	err := s.rc.Read(func(fd uintptr) bool {
		n, _, rerr = unix.Recvfrom(int(fd), buf, unix.MSG_DONTWAIT)
		return true
	})
	if err != nil {
		return datagram{}, err
	}
	if rerr != nil {
		if errors.Is(rerr, unix.EAGAIN) || errors.Is(rerr, unix.EWOULDBLOCK) || errors.Is(rerr, unix.EINTR) {
			return datagram{}, errWouldBlock
		}
		return datagram{}, rerr
	}
	return datagram{data: buf[:n], ipHeader: true}, nil
}

func (s *rawSocket4) Close() error { return s.conn.Close() }
