package probes

import (
	"net/netip"
	"sync"
	"time"

	"github.com/user/pingwatch/internal/model"
)

// scriptedProber answers attempts from a fixed script of successes and
// failures, then succeeds forever.
type scriptedProber struct {
	target model.Target

	mu     sync.Mutex
	script []bool
	calls  []uint16
	closed bool
}

func newScriptedProber(name string, script ...bool) *scriptedProber {
	return &scriptedProber{
		target: model.Target{Name: name, Addr: netip.MustParseAddr("192.0.2.1")},
		script: script,
	}
}

func (p *scriptedProber) Target() model.Target { return p.target }

func (p *scriptedProber) ProbeOnce(seq uint16, timeout time.Duration) model.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()

	ok := true
	if len(p.calls) < len(p.script) {
		ok = p.script[len(p.calls)]
	}
	p.calls = append(p.calls, seq)

	out := model.Outcome{Target: p.target, Seq: seq}
	if !ok {
		out.Err = ErrTimeout
		return out
	}
	out.RTT = time.Millisecond
	out.Bytes = 56
	out.TTL = 64
	return out
}

func (p *scriptedProber) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *scriptedProber) seqs() []uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint16(nil), p.calls...)
}
