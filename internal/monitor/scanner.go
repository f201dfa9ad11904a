package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/user/pingwatch/internal/lookup"
	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/probes"
)

// MaxScanAddresses bounds the size of a monitored network.
const MaxScanAddresses = 1 << 16

// ScannerConfig controls one SubnetScanner.
type ScannerConfig struct {
	Network netip.Prefix
	// Timeout is the per-address probe timeout.
	Timeout time.Duration
	// Concurrency caps in-flight probes; 0 means one goroutine per address.
	Concurrency int
	// Rate limits probe launches per second; 0 disables pacing.
	Rate        float64
	ChangesOnly bool
	ResolveMAC  bool
}

// Cycle is the result of one scan over the network.
type Cycle struct {
	Start    time.Time
	Duration time.Duration
	Probed   int
	// Seen holds every responder, in address order.
	Seen []model.DeviceInfo
	// Changes holds Added and Removed entries, plus Stable entries unless
	// changes-only reporting is on.
	Changes []model.ScanChange
}

// Scanner probes every address of a network once per cycle and keeps the
// set of hosts that answered last time. Scan must not be called
// concurrently.
type Scanner struct {
	cfg     ScannerConfig
	addrs   []netip.Addr
	factory probes.Factory
	meta    lookup.Metadata
	limiter *rate.Limiter
	logger  *zap.Logger
	now     func() time.Time

	live map[netip.Addr]model.DeviceInfo
}

// ParseNetwork parses a CIDR or a single address into a prefix.
func ParseNetwork(s string) (netip.Prefix, error) {
	if p, err := netip.ParsePrefix(s); err == nil {
		return p.Masked(), nil
	}
	if a, err := netip.ParseAddr(s); err == nil {
		return netip.PrefixFrom(a, a.BitLen()), nil
	}
	return netip.Prefix{}, fmt.Errorf("%w: %q is not a CIDR network", probes.ErrInvalidAddress, s)
}

// Enumerate lists every address of the prefix, network and broadcast
// addresses included.
func Enumerate(p netip.Prefix) ([]netip.Addr, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("%w: invalid network", probes.ErrInvalidAddress)
	}
	p = p.Masked()
	hostBits := p.Addr().BitLen() - p.Bits()
	if hostBits > 16 {
		return nil, fmt.Errorf("%w: network %s has more than %d addresses", probes.ErrInvalidAddress, p, MaxScanAddresses)
	}

	addrs := make([]netip.Addr, 0, 1<<hostBits)
	for a := p.Addr(); a.IsValid() && p.Contains(a); a = a.Next() {
		addrs = append(addrs, a)
	}
	return addrs, nil
}

// NewScanner creates a scanner for cfg.Network.
func NewScanner(cfg ScannerConfig, factory probes.Factory, meta lookup.Metadata, logger *zap.Logger) (*Scanner, error) {
	addrs, err := Enumerate(cfg.Network)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 500 * time.Millisecond
	}
	if meta == nil {
		meta = lookup.None{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scanner{
		cfg:     cfg,
		addrs:   addrs,
		factory: factory,
		meta:    meta,
		logger:  logger.With(zap.String("network", cfg.Network.String())),
		now:     time.Now,
		live:    make(map[netip.Addr]model.DeviceInfo),
	}
	if cfg.Rate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}
	return s, nil
}

// Addresses returns how many addresses each cycle covers.
func (s *Scanner) Addresses() int { return len(s.addrs) }

// Scan runs one cycle. A cancelled context stops launching probes, waits
// for those in flight and returns ctx.Err() without touching the live set.
// ErrPermissionDenied from the prober factory aborts the cycle.
func (s *Scanner) Scan(ctx context.Context) (*Cycle, error) {
	start := s.now()
	up, probed, err := s.probeAll(ctx)
	if err != nil {
		return nil, err
	}

	infos := s.describe(ctx, up)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	cycle := &Cycle{Start: start, Probed: probed}
	seen := make(map[netip.Addr]bool, len(infos))

	for _, info := range infos {
		seen[info.Addr] = true
		info.LastSeen = now

		prev, ok := s.live[info.Addr]
		if ok {
			info.FirstSeen = prev.FirstSeen
		} else {
			info.FirstSeen = now
		}
		s.live[info.Addr] = info
		cycle.Seen = append(cycle.Seen, info)

		switch {
		case !ok:
			cycle.Changes = append(cycle.Changes, model.ScanChange{Kind: model.Added, Device: info})
		case !s.cfg.ChangesOnly:
			cycle.Changes = append(cycle.Changes, model.ScanChange{Kind: model.Stable, Device: info})
		}
	}

	var gone []model.DeviceInfo
	for addr, info := range s.live {
		if !seen[addr] {
			gone = append(gone, info)
			delete(s.live, addr)
		}
	}
	sort.Slice(gone, func(i, j int) bool { return gone[i].Addr.Less(gone[j].Addr) })
	for _, info := range gone {
		cycle.Changes = append(cycle.Changes, model.ScanChange{Kind: model.Removed, Device: info})
	}

	cycle.Duration = s.now().Sub(start)
	s.logger.Debug("scan cycle complete",
		zap.Int("probed", probed),
		zap.Int("up", len(cycle.Seen)),
		zap.Int("removed", len(gone)),
		zap.Duration("duration", cycle.Duration),
	)
	return cycle, nil
}

// probeAll probes every non-loopback address concurrently and returns the
// responders in address order.
func (s *Scanner) probeAll(ctx context.Context) ([]netip.Addr, int, error) {
	results := make([]bool, len(s.addrs))

	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.Concurrency > 0 {
		g.SetLimit(s.cfg.Concurrency)
	}

	probed := 0
	for i, addr := range s.addrs {
		if addr.IsLoopback() {
			results[i] = true
			continue
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(gctx); err != nil {
				break
			}
		}
		if gctx.Err() != nil {
			break
		}

		probed++
		g.Go(func() error {
			p, err := s.factory(model.Target{Addr: addr})
			if err != nil {
				if errors.Is(err, probes.ErrPermissionDenied) {
					return err
				}
				s.logger.Debug("failed to create prober", zap.Stringer("ip", addr), zap.Error(err))
				return nil
			}
			defer p.Close()

			results[i] = p.ProbeOnce(0, s.cfg.Timeout).OK()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, probed, err
	}
	if err := ctx.Err(); err != nil {
		return nil, probed, err
	}

	var up []netip.Addr
	for i, ok := range results {
		if ok {
			up = append(up, s.addrs[i])
		}
	}
	return up, probed, nil
}

// describe resolves metadata for responders, loopback addresses excepted.
func (s *Scanner) describe(ctx context.Context, up []netip.Addr) []model.DeviceInfo {
	infos := make([]model.DeviceInfo, len(up))

	var g errgroup.Group
	if s.cfg.Concurrency > 0 {
		g.SetLimit(s.cfg.Concurrency)
	}
	for i, addr := range up {
		infos[i].Addr = addr
		if addr.IsLoopback() {
			infos[i].Hostname = "localhost"
			infos[i].Vendor = "Local"
			continue
		}
		g.Go(func() error {
			if s.cfg.ResolveMAC {
				infos[i].MAC = s.meta.MAC(ctx, addr)
				if infos[i].MAC != "" {
					infos[i].Vendor = s.meta.Vendor(infos[i].MAC)
				}
			}
			infos[i].Hostname = s.meta.Hostname(ctx, addr)
			return nil
		})
	}
	_ = g.Wait()
	return infos
}

// Live returns a copy of the hosts that answered in the last cycle.
func (s *Scanner) Live() []model.DeviceInfo {
	out := make([]model.DeviceInfo, 0, len(s.live))
	for _, info := range s.live {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr.Less(out[j].Addr) })
	return out
}
