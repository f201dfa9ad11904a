package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/pingwatch/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func event(ip string, offline time.Time, d time.Duration) model.OfflineRecord {
	online := offline.Add(d)
	return model.OfflineRecord{
		RunID:      "run-1",
		IP:         ip,
		OfflineAt:  offline,
		OnlineAt:   &online,
		DurationMs: d.Milliseconds(),
	}
}

func TestOpenCreatesSchemaTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, path, db.Path())
}

func TestRecordAndQueryOffline(t *testing.T) {
	ctx := context.Background()
	store := NewOfflineStorage(openTestDB(t))
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
	store.now = func() time.Time { return now }

	require.NoError(t, store.RecordOffline(ctx, event("10.0.0.5", now.Add(-3*time.Hour), 4500*time.Millisecond)))
	require.NoError(t, store.RecordOffline(ctx, event("10.0.0.5", now.Add(-1*time.Hour), 1500*time.Millisecond)))
	require.NoError(t, store.RecordOffline(ctx, event("10.0.0.5", now.Add(-36*time.Hour), 10*time.Second)))
	require.NoError(t, store.RecordOffline(ctx, event("10.0.0.7", now.Add(-2*time.Hour), time.Second)))

	events, err := store.EventsByIP(ctx, "10.0.0.5")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.True(t, events[0].OfflineAt.Equal(now.Add(-1*time.Hour)), "newest first")
	assert.True(t, events[2].OfflineAt.Equal(now.Add(-36*time.Hour)))
	assert.Equal(t, "run-1", events[0].RunID)
	require.NotNil(t, events[0].OnlineAt)
	assert.True(t, events[0].OnlineAt.Equal(now.Add(-1*time.Hour).Add(1500*time.Millisecond)))
	assert.Positive(t, events[0].ID)

	count, avg, err := store.TodayStats(ctx, "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.InDelta(t, 3000, avg, 0.001)

	count, total, err := store.TotalStats(ctx, "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, int64(16000), total)

	count, avg, err = store.TodayStats(ctx, "10.9.9.9")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, avg)

	stats, err := store.DevicesToday(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "10.0.0.5", stats[0].IP)
	assert.Equal(t, 2, stats[0].Count)
	assert.Equal(t, int64(6000), stats[0].TotalDurationMs)
	assert.Equal(t, "10.0.0.7", stats[1].IP)

	between, err := store.EventsBetween(ctx, now.Add(-4*time.Hour), now)
	require.NoError(t, err)
	require.Len(t, between, 3)
	assert.Equal(t, "10.0.0.5", between[0].IP)
	assert.Equal(t, "10.0.0.7", between[1].IP)
}

func TestEventsByIPLimit(t *testing.T) {
	ctx := context.Background()
	store := NewOfflineStorage(openTestDB(t))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < HistoryLimit+5; i++ {
		require.NoError(t, store.RecordOffline(ctx, event("10.0.0.1", base.Add(time.Duration(i)*time.Minute), time.Second)))
	}

	events, err := store.EventsByIP(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Len(t, events, HistoryLimit)
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	store := NewOfflineStorage(openTestDB(t))
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return created }
	require.NoError(t, store.RecordOffline(ctx, event("10.0.0.1", created, time.Second)))

	store.now = func() time.Time { return created.Add(48 * time.Hour) }
	require.NoError(t, store.RecordOffline(ctx, event("10.0.0.2", created, time.Second)))

	n, err := store.Cleanup(ctx, created.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	total, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestExportJSON(t *testing.T) {
	ctx := context.Background()
	store := NewOfflineStorage(openTestDB(t))

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(ctx, &buf))
	assert.JSONEq(t, "[]", buf.String())

	require.NoError(t, store.RecordOffline(ctx, event("10.0.0.3", time.Now().Add(-time.Minute), 2*time.Second)))
	buf.Reset()
	require.NoError(t, store.ExportJSON(ctx, &buf))

	var out []model.OfflineRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "10.0.0.3", out[0].IP)
	assert.Equal(t, int64(2000), out[0].DurationMs)
}

func TestSaveDevicesUpsert(t *testing.T) {
	ctx := context.Background()
	store := NewDeviceStorage(openTestDB(t))
	first := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	rec := model.DeviceRecord{
		DeviceInfo: model.DeviceInfo{
			Addr:      netip.MustParseAddr("192.168.1.20"),
			Hostname:  "printer",
			MAC:       "00:1A:11:22:33:44",
			Vendor:    "Google",
			FirstSeen: first,
			LastSeen:  first,
		},
		Status:           model.StatusNew,
		LastStatusChange: first,
	}
	other := model.DeviceRecord{
		DeviceInfo: model.DeviceInfo{Addr: netip.MustParseAddr("192.168.1.3"), FirstSeen: first, LastSeen: first},
		Status:     model.StatusOnline,
	}
	require.NoError(t, store.SaveDevices(ctx, []model.DeviceRecord{rec, other}))

	rec.Status = model.StatusOffline
	rec.LastSeen = first.Add(time.Hour)
	rec.ConsecutiveFailures = 5
	rec.FirstSeen = first.Add(time.Hour)
	require.NoError(t, store.SaveDevices(ctx, []model.DeviceRecord{rec}))

	recs, err := store.ListDevices(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	var got model.DeviceRecord
	for _, r := range recs {
		if r.Addr == rec.Addr {
			got = r
		}
	}
	assert.Equal(t, "printer", got.Hostname)
	assert.Equal(t, model.StatusOffline, got.Status)
	assert.Equal(t, 5, got.ConsecutiveFailures)
	assert.True(t, got.FirstSeen.Equal(first), "first_seen is kept on update")
	assert.True(t, got.LastSeen.Equal(first.Add(time.Hour)))

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.StatusOffline])
	assert.Equal(t, 1, counts[model.StatusOnline])
}
