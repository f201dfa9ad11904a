package probes

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// HeaderLen is the size of an ICMP Echo header.
const HeaderLen = 8

const (
	protocolICMP  = 1
	ipv4HeaderMin = 20
)

// EchoReply is a decoded Echo Reply matching an outstanding request.
type EchoReply struct {
	ID   uint16
	Seq  uint16
	Size int
	TTL  int
	RTT  time.Duration
}

// Encode builds an ICMPv4 Echo Request of size bytes in total, header
// included. The payload after the header is filled with i % 256.
func Encode(id, seq uint16, size int) ([]byte, error) {
	return encode(byte(ipv4.ICMPTypeEcho), id, seq, size)
}

// EncodeV6 builds an ICMPv6 Echo Request. The kernel rewrites the checksum
// for raw ICMPv6 sockets, but it is filled in here all the same.
func EncodeV6(id, seq uint16, size int) ([]byte, error) {
	return encode(byte(ipv6.ICMPTypeEchoRequest), id, seq, size)
}

func encode(typ byte, id, seq uint16, size int) ([]byte, error) {
	if size < HeaderLen {
		return nil, fmt.Errorf("%w: size %d is smaller than the %d byte header", ErrPacketConstruction, size, HeaderLen)
	}

	b := make([]byte, size)
	for i := range b[HeaderLen:] {
		b[HeaderLen+i] = byte(i % 256)
	}
	b[0] = typ
	b[1] = 0
	binary.BigEndian.PutUint16(b[4:6], id)
	binary.BigEndian.PutUint16(b[6:8], seq)
	binary.BigEndian.PutUint16(b[2:4], Checksum(b))
	return b, nil
}

// Decode parses an ICMPv4 Echo Reply starting at offset. It returns false
// unless the buffer holds a full header of type Echo Reply whose identifier
// and sequence both equal the expected values.
func Decode(buf []byte, offset int, id, seq uint16, start time.Time, ttl int) (*EchoReply, bool) {
	return decode(byte(ipv4.ICMPTypeEchoReply), buf, offset, id, seq, start, ttl)
}

// DecodeV6 is Decode for ICMPv6 Echo Replies.
func DecodeV6(buf []byte, offset int, id, seq uint16, start time.Time, ttl int) (*EchoReply, bool) {
	return decode(byte(ipv6.ICMPTypeEchoReply), buf, offset, id, seq, start, ttl)
}

func decode(typ byte, buf []byte, offset int, id, seq uint16, start time.Time, ttl int) (*EchoReply, bool) {
	if offset < 0 || len(buf) < offset+HeaderLen {
		return nil, false
	}
	msg := buf[offset:]
	if msg[0] != typ {
		return nil, false
	}
	if binary.BigEndian.Uint16(msg[4:6]) != id || binary.BigEndian.Uint16(msg[6:8]) != seq {
		return nil, false
	}
	return &EchoReply{
		ID:   id,
		Seq:  seq,
		Size: len(msg),
		TTL:  ttl,
		RTT:  time.Since(start),
	}, true
}

// Checksum computes the Internet checksum of b, treating bytes 2-3 as zero.
func Checksum(b []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(b); i += 2 {
		if i == 2 {
			continue
		}
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if len(b)%2 == 1 {
		sum += uint32(b[len(b)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = sum&0xffff + sum>>16
	}
	return ^uint16(sum)
}

// ValidChecksum reports whether the checksum embedded in b matches its content.
func ValidChecksum(b []byte) bool {
	if len(b) < HeaderLen {
		return false
	}
	return binary.BigEndian.Uint16(b[2:4]) == Checksum(b)
}

var errShortIPv4 = errors.New("short or malformed IPv4 header")

// UnwrapIPv4 reads the envelope of a raw IPv4 datagram and returns where the
// upper-layer message starts along with the TTL and protocol number.
func UnwrapIPv4(b []byte) (offset, ttl, proto int, err error) {
	if len(b) < ipv4HeaderMin || b[0]>>4 != 4 {
		return 0, 0, 0, errShortIPv4
	}
	offset = int(b[0]&0x0f) * 4
	if offset < ipv4HeaderMin || len(b) < offset {
		return 0, 0, 0, errShortIPv4
	}
	return offset, int(b[8]), int(b[9]), nil
}
