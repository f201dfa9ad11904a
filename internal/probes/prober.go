// Package probes implements ICMP Echo probing: the wire codec, raw-socket
// probers, retrying sessions and host resolution.
package probes

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/user/pingwatch/internal/model"
)

// pollInterval is how long the receive loop sleeps when no datagram is queued.
const pollInterval = time.Millisecond

// Prober sends Echo Requests to one fixed target.
type Prober interface {
	Target() model.Target
	// ProbeOnce sends a single request and waits up to timeout for the
	// matching reply. Failures are reported through Outcome.Err.
	ProbeOnce(seq uint16, timeout time.Duration) model.Outcome
	Close() error
}

// Factory creates a prober for a target.
type Factory func(target model.Target) (Prober, error)

// Options configures the requests a prober sends.
type Options struct {
	// Size is the total ICMP message length, header included.
	Size int
	TTL  int
}

// DefaultOptions matches classic ping: 56 byte messages, TTL 64.
func DefaultOptions() Options {
	return Options{Size: 56, TTL: 64}
}

var errWouldBlock = errors.New("no datagram queued")

// datagram is one received packet. When ipHeader is set the data begins
// with the IPv4 header and the sender is read from it; otherwise it begins
// with the ICMP message, src is the peer reported by the socket and ttl
// carries the hop limit.
type datagram struct {
	data     []byte
	ipHeader bool
	src      netip.Addr
	ttl      int
}

// socket is a raw ICMP endpoint for one address family.
type socket interface {
	writeTo(b []byte, dst net.Addr) error
	// poll never blocks longer than pollInterval; it returns errWouldBlock
	// when nothing arrived.
	poll(buf []byte) (datagram, error)
	Close() error
}

// RawProber probes through a privileged raw socket.
type RawProber struct {
	target model.Target
	opts   Options
	id     uint16
	v6     bool
	dst    net.Addr
	sock   socket
	logger *zap.Logger
}

// NewRawProber opens a raw socket for the target's address family.
func NewRawProber(target model.Target, opts Options, logger *zap.Logger) (*RawProber, error) {
	if !target.Addr.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, target.Name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	addr := target.Addr.Unmap()
	v6 := addr.Is6()

	var (
		sock socket
		err  error
	)
	if v6 {
		sock, err = listen6(opts.TTL)
	} else {
		sock, err = listen4(opts.TTL)
	}
	if err != nil {
		if isPermission(err) {
			return nil, wrap(ErrPermissionDenied, err)
		}
		return nil, wrap(ErrSend, err)
	}

	p := &RawProber{
		target: target,
		opts:   opts,
		id:     nextID(),
		v6:     v6,
		dst:    &net.IPAddr{IP: net.IP(addr.AsSlice()), Zone: addr.Zone()},
		sock:   sock,
		logger: logger.With(zap.String("target", target.String())),
	}
	return p, nil
}

// RawFactory returns a Factory producing raw-socket probers.
func RawFactory(opts Options, logger *zap.Logger) Factory {
	return func(target model.Target) (Prober, error) {
		return NewRawProber(target, opts, logger)
	}
}

func (p *RawProber) Target() model.Target { return p.target }

// ID returns the Echo identifier used by this prober.
func (p *RawProber) ID() uint16 { return p.id }

func (p *RawProber) Close() error { return p.sock.Close() }

func (p *RawProber) ProbeOnce(seq uint16, timeout time.Duration) model.Outcome {
	out := model.Outcome{Target: p.target, Seq: seq}

	var (
		req []byte
		err error
	)
	if p.v6 {
		req, err = EncodeV6(p.id, seq, p.opts.Size)
	} else {
		req, err = Encode(p.id, seq, p.opts.Size)
	}
	if err != nil {
		out.Err = err
		return out
	}

	start := time.Now()
	deadline := start.Add(timeout)
	if err := p.sock.writeTo(req, p.dst); err != nil {
		out.Err = wrap(ErrSend, err)
		return out
	}

	buf := make([]byte, 65536)
	for {
		if !time.Now().Before(deadline) {
			out.Err = ErrTimeout
			return out
		}

		d, err := p.sock.poll(buf)
		if errors.Is(err, errWouldBlock) {
			time.Sleep(pollInterval)
			continue
		}
		if err != nil {
			out.Err = wrap(ErrSend, err)
			return out
		}

		reply, ok := p.match(d, seq, start)
		if !ok {
			continue
		}
		out.RTT = reply.RTT
		out.Bytes = reply.Size
		out.TTL = reply.TTL
		return out
	}
}

// match accepts only Echo Replies sent by the target. Every raw socket sees
// every reply, so the identifier alone does not tie a reply to this prober.
func (p *RawProber) match(d datagram, seq uint16, start time.Time) (*EchoReply, bool) {
	if p.v6 {
		if !sameHost(d.src, p.target.Addr) {
			return nil, false
		}
		return DecodeV6(d.data, 0, p.id, seq, start, d.ttl)
	}

	offset, ttl, src := 0, d.ttl, d.src
	if d.ipHeader {
		off, t, proto, err := UnwrapIPv4(d.data)
		if err != nil || proto != protocolICMP {
			return nil, false
		}
		offset, ttl = off, t
		src = netip.AddrFrom4([4]byte(d.data[12:16]))
	}
	if !sameHost(src, p.target.Addr) {
		return nil, false
	}
	return Decode(d.data, offset, p.id, seq, start, ttl)
}

func sameHost(a, b netip.Addr) bool {
	return a.IsValid() && a.Unmap().WithZone("") == b.Unmap().WithZone("")
}

// peerAddr converts the source reported by ReadFrom.
func peerAddr(a net.Addr) netip.Addr {
	ipa, ok := a.(*net.IPAddr)
	if !ok {
		return netip.Addr{}
	}
	addr, ok := netip.AddrFromSlice(ipa.IP)
	if !ok {
		return netip.Addr{}
	}
	return addr.Unmap()
}

func isPermission(err error) bool {
	return errors.Is(err, os.ErrPermission) ||
		errors.Is(err, syscall.EPERM) ||
		errors.Is(err, syscall.EACCES)
}

// lastID is advanced for every prober so that probers open at the same
// time, such as one scan cycle's, never share an identifier. It starts at
// a random value to stay apart from other processes.
var lastID atomic.Uint32

func init() {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		lastID.Store(uint32(os.Getpid()))
		return
	}
	lastID.Store(uint32(binary.BigEndian.Uint16(b[:])))
}

func nextID() uint16 {
	return uint16(lastID.Add(1))
}

// deadlineSocket polls a net.PacketConn with a short read deadline. It is
// used where the platform cannot hand back the IPv4 header on a
// non-blocking receive.
type deadlineSocket struct {
	conn net.PacketConn
	pc6  *ipv6PacketConn
}

func (s *deadlineSocket) writeTo(b []byte, dst net.Addr) error {
	_, err := s.conn.WriteTo(b, dst)
	return err
}

func (s *deadlineSocket) poll(buf []byte) (datagram, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
		return datagram{}, err
	}

	var (
		n    int
		ttl  int
		peer net.Addr
		err  error
	)
	if s.pc6 != nil {
		n, ttl, peer, err = s.pc6.read(buf)
	} else {
		n, peer, err = s.conn.ReadFrom(buf)
	}
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return datagram{}, errWouldBlock
		}
		return datagram{}, err
	}
	return datagram{data: buf[:n], src: peerAddr(peer), ttl: ttl}, nil
}

func (s *deadlineSocket) Close() error { return s.conn.Close() }

func listenPacket(network, address string, control func(network, address string, c syscall.RawConn) error) (net.PacketConn, error) {
	lc := net.ListenConfig{Control: control}
	return lc.ListenPacket(context.Background(), network, address)
}
