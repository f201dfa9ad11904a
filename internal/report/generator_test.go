package report

import (
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/storage"
)

func seedReportDB(t *testing.T, base time.Time) *storage.DB {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open(filepath.Join(t.TempDir(), "report.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	offline := storage.NewOfflineStorage(db)
	record := func(ip string, at time.Duration, d time.Duration) {
		start := base.Add(at)
		end := start.Add(d)
		require.NoError(t, offline.RecordOffline(ctx, model.OfflineRecord{
			IP: ip, OfflineAt: start, OnlineAt: &end, DurationMs: d.Milliseconds(),
		}))
	}
	record("10.0.0.5", time.Hour, 30*time.Second)
	record("10.0.0.5", 2*time.Hour, 90*time.Second)
	record("10.0.0.5", 3*time.Hour, 10*time.Second)
	record("10.0.0.7", 4*time.Hour, 5*time.Minute)
	record("10.0.0.9", -48*time.Hour, time.Minute)

	devices := storage.NewDeviceStorage(db)
	require.NoError(t, devices.SaveDevices(ctx, []model.DeviceRecord{
		{DeviceInfo: model.DeviceInfo{Addr: netip.MustParseAddr("10.0.0.5"), Hostname: "nas.home.lan", FirstSeen: base, LastSeen: base}, Status: model.StatusOnline},
		{DeviceInfo: model.DeviceInfo{Addr: netip.MustParseAddr("10.0.0.7"), FirstSeen: base, LastSeen: base}, Status: model.StatusOffline},
	}))
	return db
}

func TestGenerate(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.Local)
	gen := NewGenerator(seedReportDB(t, base))
	gen.now = func() time.Time { return base.Add(24 * time.Hour) }

	data, err := gen.Generate(context.Background(), model.ReportOptions{Since: base})
	require.NoError(t, err)

	require.Len(t, data.Events, 4)
	assert.Equal(t, base.Add(24*time.Hour), data.Until)
	assert.Equal(t, 30*time.Second+90*time.Second+10*time.Second+5*time.Minute, data.TotalDowntime)
	require.NotNil(t, data.Longest)
	assert.Equal(t, "10.0.0.7", data.Longest.IP)

	require.Len(t, data.Devices, 2)
	assert.Equal(t, "10.0.0.5", data.Devices[0].IP)
	assert.Equal(t, 3, data.Devices[0].Count)
	assert.InDelta(t, 130000.0/3, data.Devices[0].AvgDurationMs, 0.01)

	require.Len(t, data.Flapping, 1)
	assert.Equal(t, "10.0.0.5", data.Flapping[0].IP)

	assert.Len(t, data.Known, 2)
	assert.Equal(t, 1, data.StatusCounts[model.StatusOffline])
	assert.Equal(t, "nas.home.lan", data.Hostname("10.0.0.5"))
}

func TestGenerateSingleDevice(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.Local)
	gen := NewGenerator(seedReportDB(t, base))

	data, err := gen.Generate(context.Background(), model.ReportOptions{
		Since: base, Until: base.Add(24 * time.Hour), IP: "10.0.0.7",
	})
	require.NoError(t, err)
	require.Len(t, data.Events, 1)
	assert.Empty(t, data.Flapping)
	assert.Len(t, data.Known, 1)
}

func TestFormatMarkdown(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.Local)
	gen := NewGenerator(seedReportDB(t, base))
	gen.now = func() time.Time { return base.Add(24 * time.Hour) }

	data, err := gen.Generate(context.Background(), model.ReportOptions{Since: base})
	require.NoError(t, err)

	md := FormatMarkdown(data)
	assert.True(t, strings.HasPrefix(md, "# pingwatch Offline Report\n"))
	assert.Contains(t, md, "| Offline events | 4 |")
	assert.Contains(t, md, "| Longest outage | 10.0.0.7 (5m0s) |")
	assert.Contains(t, md, "| 10.0.0.5 | nas.home.lan | 3 | 2m10s |")
	assert.Contains(t, md, "- **10.0.0.5** went offline 3 times")
	assert.Contains(t, md, "gantt\n")
	assert.Contains(t, md, "section 10.0.0.5 (nas.home.lan)\n")
	assert.Contains(t, md, "    down 1m30s :crit, 2026-05-01 02:00:00, 2026-05-01 02:01:30\n")
	assert.Contains(t, md, "pie title Offline events by device\n    \"10.0.0.5\" : 3\n")

	path, err := WriteMarkdownFile(data, filepath.Join(t.TempDir(), "reports"))
	require.NoError(t, err)
	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, md, string(written))
	assert.Equal(t, "pingwatch-report-20260502-000000.md", filepath.Base(path))
}

func TestFormatMarkdownEmpty(t *testing.T) {
	data := &ReportData{GeneratedAt: time.Now(), StatusCounts: map[model.Status]int{}}
	md := FormatMarkdown(data)
	assert.Contains(t, md, "No offline events in this period.")
	assert.NotContains(t, md, "```mermaid")
}

func TestGanttShortOutage(t *testing.T) {
	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	chart := GenerateOfflineGantt([]model.OfflineRecord{{IP: "10.0.0.1", OfflineAt: start, DurationMs: 200}}, nil)
	assert.Contains(t, chart, "    section 10.0.0.1\n")
	assert.Contains(t, chart, "    down 200ms :crit, 2026-05-01 08:00:00, 2026-05-01 08:00:01\n")
	assert.Empty(t, GenerateOfflineGantt(nil, nil))
}
