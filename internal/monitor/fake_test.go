package monitor

import (
	"context"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/probes"
)

// fakeNetwork answers probes for the addresses marked up; every other
// probe blocks for its full timeout and fails.
type fakeNetwork struct {
	mu       sync.Mutex
	up       map[netip.Addr]bool
	inFlight atomic.Int32
	peak     atomic.Int32
	probes   atomic.Int32
	denyAll  bool
}

func newFakeNetwork(up ...string) *fakeNetwork {
	n := &fakeNetwork{up: map[netip.Addr]bool{}}
	n.set(up...)
	return n
}

func (n *fakeNetwork) set(up ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.up = map[netip.Addr]bool{}
	for _, s := range up {
		n.up[netip.MustParseAddr(s)] = true
	}
}

func (n *fakeNetwork) isUp(a netip.Addr) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.up[a]
}

func (n *fakeNetwork) factory() probes.Factory {
	return func(t model.Target) (probes.Prober, error) {
		if n.denyAll {
			return nil, probes.ErrPermissionDenied
		}
		return &fakeProber{net: n, target: t}, nil
	}
}

type fakeProber struct {
	net    *fakeNetwork
	target model.Target
}

func (p *fakeProber) Target() model.Target { return p.target }

func (p *fakeProber) ProbeOnce(seq uint16, timeout time.Duration) model.Outcome {
	cur := p.net.inFlight.Add(1)
	defer p.net.inFlight.Add(-1)
	p.net.probes.Add(1)
	for {
		peak := p.net.peak.Load()
		if cur <= peak || p.net.peak.CompareAndSwap(peak, cur) {
			break
		}
	}

	out := model.Outcome{Target: p.target, Seq: seq}
	if p.net.isUp(p.target.Addr) {
		time.Sleep(time.Millisecond)
		out.RTT = time.Millisecond
		return out
	}
	time.Sleep(timeout)
	out.Err = probes.ErrTimeout
	return out
}

func (p *fakeProber) Close() error { return nil }

// fakeMeta returns fixed metadata.
type fakeMeta struct{}

func (fakeMeta) Hostname(_ context.Context, a netip.Addr) string { return "host-" + a.String() }
func (fakeMeta) MAC(context.Context, netip.Addr) string        { return "00:0C:29:00:00:01" }
func (fakeMeta) Vendor(mac string) string                     { return "VMware" }

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
