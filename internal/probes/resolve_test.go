package probes

import (
	"context"
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	addrs []netip.Addr
	err   error
}

func (s stubResolver) LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error) {
	return s.addrs, s.err
}

func TestResolveHostLiteral(t *testing.T) {
	target, err := ResolveHost(context.Background(), stubResolver{err: errors.New("unused")}, "10.0.0.7")
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("10.0.0.7"), target.Addr)
	assert.Equal(t, "10.0.0.7", target.Name)

	target, err = ResolveHost(context.Background(), nil, "::1")
	require.NoError(t, err)
	assert.True(t, target.Addr.Is6())
}

func TestResolveHostPrefersIPv4(t *testing.T) {
	r := stubResolver{addrs: []netip.Addr{
		netip.MustParseAddr("2001:db8::1"),
		netip.MustParseAddr("198.51.100.4"),
	}}
	target, err := ResolveHost(context.Background(), r, "example.test")
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("198.51.100.4"), target.Addr)
	assert.Equal(t, "example.test", target.Name)
}

func TestResolveHostFallsBackToIPv6(t *testing.T) {
	r := stubResolver{addrs: []netip.Addr{netip.MustParseAddr("2001:db8::1")}}
	target, err := ResolveHost(context.Background(), r, "v6only.test")
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("2001:db8::1"), target.Addr)
}

func TestResolveHostErrors(t *testing.T) {
	_, err := ResolveHost(context.Background(), stubResolver{err: errors.New("no such host")}, "nope.test")
	assert.ErrorIs(t, err, ErrResolution)

	_, err = ResolveHost(context.Background(), stubResolver{}, "empty.test")
	assert.ErrorIs(t, err, ErrResolution)

	_, err = ResolveHost(context.Background(), stubResolver{}, "  ")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestLoadHostsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.txt")
	content := "# routers\n192.168.1.1\n\n  example.com  \n#skip\n10.0.0.1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	hosts, err := LoadHostsFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.1.1", "example.com", "10.0.0.1"}, hosts)

	_, err = LoadHostsFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
