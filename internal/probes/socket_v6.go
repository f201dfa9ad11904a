package probes

import (
	"net"

	"golang.org/x/net/ipv6"
)

// ipv6PacketConn reads ICMPv6 messages together with their hop limit.
type ipv6PacketConn struct {
	pc *ipv6.PacketConn
}

func newIPv6PacketConn(c net.PacketConn) *ipv6PacketConn {
	pc := ipv6.NewPacketConn(c)
	// Not supported everywhere; the hop limit is then reported as 0.
	_ = pc.SetControlMessage(ipv6.FlagHopLimit, true)

	var f ipv6.ICMPFilter
	f.SetAll(true)
	f.Accept(ipv6.ICMPTypeEchoReply)
	_ = pc.SetICMPFilter(&f)

	return &ipv6PacketConn{pc: pc}
}

func (c *ipv6PacketConn) read(buf []byte) (n, hopLimit int, peer net.Addr, err error) {
	n, cm, peer, err := c.pc.ReadFrom(buf)
	if err != nil {
		return 0, 0, nil, err
	}
	if cm != nil {
		hopLimit = cm.HopLimit
	}
	return n, hopLimit, peer, nil
}
