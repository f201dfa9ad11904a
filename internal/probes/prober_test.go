package probes

import (
	"errors"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/pingwatch/internal/model"
)

type pollResult struct {
	d   datagram
	err error
}

// scriptedSocket replays poll results in order and then reports that
// nothing is queued.
type scriptedSocket struct {
	writeErr error
	script   []pollResult
	writes   [][]byte
	polls    int
}

func (s *scriptedSocket) writeTo(b []byte, dst net.Addr) error {
	s.writes = append(s.writes, append([]byte(nil), b...))
	return s.writeErr
}

func (s *scriptedSocket) poll(buf []byte) (datagram, error) {
	s.polls++
	if len(s.script) == 0 {
		return datagram{}, errWouldBlock
	}
	r := s.script[0]
	s.script = s.script[1:]
	return r.d, r.err
}

func (s *scriptedSocket) Close() error { return nil }

func testRawProber(target string, sock socket, opts Options) *RawProber {
	addr := netip.MustParseAddr(target)
	return &RawProber{
		target: model.Target{Name: target, Addr: addr},
		opts:   opts,
		id:     nextID(),
		v6:     addr.Is6(),
		dst:    &net.IPAddr{IP: net.IP(addr.AsSlice())},
		sock:   sock,
		logger: zap.NewNop(),
	}
}

// echoReplyFrom builds a raw IPv4 datagram carrying an Echo Reply from src.
func echoReplyFrom(t *testing.T, src string, id, seq uint16, ttl byte) datagram {
	t.Helper()
	req, err := Encode(id, seq, 56)
	require.NoError(t, err)
	b := ipv4Datagram(5, ttl, protocolICMP, asReply(req, 0))
	a := netip.MustParseAddr(src).As4()
	copy(b[12:16], a[:])
	return datagram{data: b, ipHeader: true}
}

func TestRawProberReplyFromTarget(t *testing.T) {
	sock := &scriptedSocket{}
	p := testRawProber("192.0.2.5", sock, DefaultOptions())
	sock.script = []pollResult{
		{err: errWouldBlock},
		{d: echoReplyFrom(t, "192.0.2.5", p.ID(), 3, 57)},
	}

	o := p.ProbeOnce(3, time.Second)
	require.True(t, o.OK(), "%v", o.Err)
	assert.Equal(t, uint16(3), o.Seq)
	assert.Equal(t, 56, o.Bytes)
	assert.Equal(t, 57, o.TTL)

	require.Len(t, sock.writes, 1)
	assert.Len(t, sock.writes[0], 56)
	assert.True(t, ValidChecksum(sock.writes[0]))
}

func TestRawProberIgnoresReplyFromOtherHost(t *testing.T) {
	sock := &scriptedSocket{}
	p := testRawProber("192.0.2.5", sock, DefaultOptions())
	sock.script = []pollResult{
		{d: echoReplyFrom(t, "192.0.2.99", p.ID(), 0, 64)},
	}

	o := p.ProbeOnce(0, 30*time.Millisecond)
	assert.ErrorIs(t, o.Err, ErrTimeout)
}

func TestRawProberSkipsUnrelatedDatagrams(t *testing.T) {
	sock := &scriptedSocket{}
	p := testRawProber("192.0.2.5", sock, DefaultOptions())

	udp := echoReplyFrom(t, "192.0.2.5", p.ID(), 1, 64)
	udp.data[9] = 17
	sock.script = []pollResult{
		{d: udp},
		{d: echoReplyFrom(t, "192.0.2.5", p.ID()+1, 1, 64)},
		{d: echoReplyFrom(t, "192.0.2.5", p.ID(), 2, 64)},
		{d: datagram{data: []byte{0x45, 0, 0}, ipHeader: true}},
		{d: echoReplyFrom(t, "192.0.2.5", p.ID(), 1, 60)},
	}

	o := p.ProbeOnce(1, time.Second)
	require.True(t, o.OK(), "%v", o.Err)
	assert.Equal(t, 60, o.TTL)
	assert.Equal(t, 5, sock.polls)
}

func TestRawProberIPv6Source(t *testing.T) {
	sock := &scriptedSocket{}
	p := testRawProber("2001:db8::5", sock, DefaultOptions())

	req, err := EncodeV6(p.ID(), 0, 16)
	require.NoError(t, err)
	reply := asReply(req, 129)
	sock.script = []pollResult{
		{d: datagram{data: reply, src: netip.MustParseAddr("2001:db8::99"), ttl: 64}},
		{d: datagram{data: reply, src: netip.MustParseAddr("2001:db8::5"), ttl: 63}},
	}

	o := p.ProbeOnce(0, time.Second)
	require.True(t, o.OK(), "%v", o.Err)
	assert.Equal(t, 63, o.TTL)
	assert.Equal(t, 2, sock.polls)
}

func TestRawProberFailures(t *testing.T) {
	tests := []struct {
		name    string
		sock    *scriptedSocket
		opts    Options
		timeout time.Duration
		want    error
		writes  int
	}{
		{
			name:    "timeout",
			sock:    &scriptedSocket{},
			opts:    DefaultOptions(),
			timeout: 20 * time.Millisecond,
			want:    ErrTimeout,
			writes:  1,
		},
		{
			name:    "write error",
			sock:    &scriptedSocket{writeErr: errors.New("network unreachable")},
			opts:    DefaultOptions(),
			timeout: time.Second,
			want:    ErrSend,
			writes:  1,
		},
		{
			name:    "receive error",
			sock:    &scriptedSocket{script: []pollResult{{err: errors.New("socket closed")}}},
			opts:    DefaultOptions(),
			timeout: time.Second,
			want:    ErrSend,
			writes:  1,
		},
		{
			name:    "size too small",
			sock:    &scriptedSocket{},
			opts:    Options{Size: 4, TTL: 64},
			timeout: time.Second,
			want:    ErrPacketConstruction,
			writes:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testRawProber("192.0.2.5", tt.sock, tt.opts)
			o := p.ProbeOnce(7, tt.timeout)
			assert.ErrorIs(t, o.Err, tt.want)
			assert.Equal(t, uint16(7), o.Seq)
			assert.Len(t, tt.sock.writes, tt.writes)
		})
	}
}

func TestNextIDDistinct(t *testing.T) {
	seen := make(map[uint16]bool)
	for i := 0; i < 4096; i++ {
		id := nextID()
		require.False(t, seen[id], "identifier %d handed out twice", id)
		seen[id] = true
	}
}
