// Package lookup resolves best-effort metadata for discovered hosts:
// reverse DNS names, MAC addresses from the ARP cache and NIC vendors.
// Every lookup returns "" when the answer is unknown.
package lookup

import (
	"context"
	"net"
	"net/netip"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	dnsTimeout = 500 * time.Millisecond
	arpMaxAge  = 2 * time.Second
)

// Metadata resolves host metadata for the scanner.
type Metadata interface {
	Hostname(ctx context.Context, addr netip.Addr) string
	MAC(ctx context.Context, addr netip.Addr) string
	Vendor(mac string) string
}

// System looks metadata up through the OS resolver and ARP cache.
type System struct {
	resolver *net.Resolver
	logger   *zap.Logger

	group singleflight.Group
	mu    sync.Mutex
	table map[string]string
	read  time.Time
	now   func() time.Time
	load  func(ctx context.Context) map[string]string
}

// NewSystem creates a System lookup.
func NewSystem(logger *zap.Logger) *System {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &System{
		resolver: net.DefaultResolver,
		logger:   logger,
		now:      time.Now,
		load:     readARPTable,
	}
}

// Hostname performs a reverse lookup with a short timeout.
func (s *System) Hostname(ctx context.Context, addr netip.Addr) string {
	ctx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	names, err := s.resolver.LookupAddr(ctx, addr.String())
	if err != nil || len(names) == 0 {
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}

// MAC returns the ARP cache entry for addr. The cache is re-read at most
// every couple of seconds and concurrent callers share one read.
func (s *System) MAC(ctx context.Context, addr netip.Addr) string {
	return s.arpTable(ctx)[addr.String()]
}

func (s *System) Vendor(mac string) string { return Vendor(mac) }

func (s *System) arpTable(ctx context.Context) map[string]string {
	s.mu.Lock()
	table, fresh := s.table, s.now().Sub(s.read) < arpMaxAge
	s.mu.Unlock()
	if table != nil && fresh {
		return table
	}

	v, _, _ := s.group.Do("arp", func() (interface{}, error) {
		t := s.load(ctx)
		s.logger.Debug("read arp table", zap.Int("entries", len(t)))

		s.mu.Lock()
		s.table, s.read = t, s.now()
		s.mu.Unlock()
		return t, nil
	})
	return v.(map[string]string)
}

// None resolves nothing; used when metadata resolution is turned off.
type None struct{}

func (None) Hostname(context.Context, netip.Addr) string { return "" }
func (None) MAC(context.Context, netip.Addr) string      { return "" }
func (None) Vendor(string) string                        { return "" }
