package lookup

import (
	"context"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVendor(t *testing.T) {
	tests := []struct {
		mac  string
		want string
	}{
		{"00:0c:29:aa:bb:cc", "VMware"},
		{"00:50:56:01:02:03", "VMware"},
		{"00:1A:11:00:00:01", "Google"},
		{"00-1c-42-11-22-33", "Parallels"},
		{"52:54:00:12:34:56", "QEMU/KVM"},
		{"00:15:5D:00:00:00", "Microsoft"},
		{"00:1f:f3:00:00:00", "Apple"},
		{"00:3e:e1:10:20:30", "Apple"},
		{"aa:bb:cc:dd:ee:ff", ""},
		{"garbage", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Vendor(tt.mac), tt.mac)
	}
}

func TestParseProcARP(t *testing.T) {
	out := `IP address       HW type     Flags       HW address            Mask     Device
192.168.1.1      0x1         0x2         52:54:00:12:34:56     *        eth0
192.168.1.20     0x1         0x0         00:00:00:00:00:00     *        eth0
192.168.1.30     0x1         0x2         00:0c:29:ab:cd:ef     *        eth0
`
	table := parseProcARP(out)
	assert.Equal(t, map[string]string{
		"192.168.1.1":  "52:54:00:12:34:56",
		"192.168.1.30": "00:0C:29:AB:CD:EF",
	}, table)
}

func TestParseWindowsARP(t *testing.T) {
	out := `
Interface: 192.168.1.10 --- 0x4
  Internet Address      Physical Address      Type
  192.168.1.1           52-54-00-12-34-56     dynamic
  192.168.1.255         ff-ff-ff-ff-ff-ff     static
`
	table := parseWindowsARP(out)
	assert.Equal(t, map[string]string{"192.168.1.1": "52:54:00:12:34:56"}, table)
}

func TestParseBSDARP(t *testing.T) {
	out := `router.lan (192.168.1.1) at 0:1c:42:a:b:c on en0 ifscope [ethernet]
? (192.168.1.7) at (incomplete) on en0 ifscope [ethernet]
? (192.168.1.9) at 00:50:56:aa:bb:cc on en0 ifscope [ethernet]
`
	table := parseBSDARP(out)
	assert.Equal(t, map[string]string{
		"192.168.1.1": "00:1C:42:0A:0B:0C",
		"192.168.1.9": "00:50:56:AA:BB:CC",
	}, table)
	assert.Equal(t, "Parallels", Vendor(table["192.168.1.1"]))
}

func TestSystemMACCachesTable(t *testing.T) {
	var loads atomic.Int32
	now := time.Unix(1000, 0)

	s := NewSystem(nil)
	s.now = func() time.Time { return now }
	s.load = func(context.Context) map[string]string {
		loads.Add(1)
		return map[string]string{"10.0.0.5": "00:15:5D:01:02:03"}
	}

	addr := netip.MustParseAddr("10.0.0.5")
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, "00:15:5D:01:02:03", s.MAC(context.Background(), addr))
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, loads.Load(), int32(20))
	first := loads.Load()

	assert.Equal(t, "", s.MAC(context.Background(), netip.MustParseAddr("10.0.0.6")))
	assert.Equal(t, first, loads.Load(), "fresh table must not be re-read")

	now = now.Add(3 * time.Second)
	s.MAC(context.Background(), addr)
	assert.Equal(t, first+1, loads.Load())
}

func TestNone(t *testing.T) {
	var n None
	addr := netip.MustParseAddr("10.0.0.1")
	assert.Empty(t, n.Hostname(context.Background(), addr))
	assert.Empty(t, n.MAC(context.Background(), addr))
	assert.Empty(t, n.Vendor("00:0c:29:00:00:00"))
}
