package probes

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"

	"github.com/user/pingwatch/internal/model"
)

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// ResolveHost turns a host name or literal into a target, preferring an
// IPv4 address when the name has several.
func ResolveHost(ctx context.Context, r Resolver, host string) (model.Target, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return model.Target{}, fmt.Errorf("%w: empty host", ErrInvalidAddress)
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return model.Target{Name: host, Addr: addr.Unmap()}, nil
	}
	if r == nil {
		r = net.DefaultResolver
	}

	addrs, err := r.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return model.Target{}, fmt.Errorf("%w: %s: %w", ErrResolution, host, err)
	}
	if len(addrs) == 0 {
		return model.Target{}, fmt.Errorf("%w: %s: no addresses", ErrResolution, host)
	}

	best := addrs[0].Unmap()
	for _, a := range addrs {
		if a.Unmap().Is4() {
			best = a.Unmap()
			break
		}
	}
	return model.Target{Name: host, Addr: best}, nil
}

// LoadHostsFile reads one host per line, skipping blank lines and lines
// starting with '#'.
func LoadHostsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open hosts file: %w", err)
	}
	defer f.Close()

	var hosts []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		hosts = append(hosts, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read hosts file: %w", err)
	}
	return hosts, nil
}
