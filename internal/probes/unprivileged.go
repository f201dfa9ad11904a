package probes

import (
	"fmt"
	"runtime"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"go.uber.org/zap"

	"github.com/user/pingwatch/internal/model"
)

// UnprivilegedProber probes through datagram ICMP sockets via pro-bing.
// It needs no raw-socket privilege on Linux (subject to
// net.ipv4.ping_group_range) and macOS. The kernel picks the identifier,
// so replies are matched by pro-bing rather than by this package.
type UnprivilegedProber struct {
	target model.Target
	opts   Options
	logger *zap.Logger
}

// NewUnprivilegedProber creates a pro-bing backed prober.
func NewUnprivilegedProber(target model.Target, opts Options, logger *zap.Logger) (*UnprivilegedProber, error) {
	if !target.Addr.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, target.Name)
	}
	if opts.Size < HeaderLen {
		return nil, fmt.Errorf("%w: size %d is smaller than the %d byte header", ErrPacketConstruction, opts.Size, HeaderLen)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UnprivilegedProber{
		target: target,
		opts:   opts,
		logger: logger.With(zap.String("target", target.String())),
	}, nil
}

// UnprivilegedFactory returns a Factory producing pro-bing probers.
func UnprivilegedFactory(opts Options, logger *zap.Logger) Factory {
	return func(target model.Target) (Prober, error) {
		return NewUnprivilegedProber(target, opts, logger)
	}
}

func (p *UnprivilegedProber) Target() model.Target { return p.target }

func (p *UnprivilegedProber) Close() error { return nil }

func (p *UnprivilegedProber) ProbeOnce(seq uint16, timeout time.Duration) model.Outcome {
	out := model.Outcome{Target: p.target, Seq: seq}

	pinger, err := probing.NewPinger(p.target.Addr.Unmap().String())
	if err != nil {
		out.Err = wrap(ErrInvalidAddress, err)
		return out
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.Size = p.opts.Size - HeaderLen
	if p.opts.TTL > 0 {
		pinger.TTL = p.opts.TTL
	}
	// Windows has no datagram ICMP sockets.
	pinger.SetPrivileged(runtime.GOOS == "windows")

	var got *probing.Packet
	pinger.OnRecv = func(pkt *probing.Packet) {
		if got == nil {
			got = pkt
		}
	}

	if err := pinger.Run(); err != nil {
		p.logger.Debug("ping failed", zap.Error(err))
		if isPermission(err) {
			out.Err = wrap(ErrPermissionDenied, err)
			return out
		}
		out.Err = wrap(ErrSend, err)
		return out
	}
	if got == nil {
		out.Err = ErrTimeout
		return out
	}

	out.RTT = got.Rtt
	out.Bytes = got.Nbytes
	out.TTL = got.TTL
	return out
}
