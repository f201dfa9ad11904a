package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/pingwatch/internal/metrics"
	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/monitor"
	"github.com/user/pingwatch/internal/storage"
)

func newTestServer(t *testing.T, withDB bool) (*Server, *storage.DB) {
	t.Helper()

	tracker := monitor.NewTracker()
	now := time.Now()
	tracker.Upsert(model.DeviceInfo{Addr: netip.MustParseAddr("10.0.0.9"), Hostname: "nas", FirstSeen: now.Add(-time.Hour), LastSeen: now}, model.StatusOnline)
	tracker.Upsert(model.DeviceInfo{Addr: netip.MustParseAddr("10.0.0.2"), FirstSeen: now.Add(-time.Minute), LastSeen: now}, model.StatusNew)

	opts := Options{Network: "10.0.0.0/24", Tracker: tracker, Metrics: metrics.New()}

	var db *storage.DB
	if withDB {
		var err error
		db, err = storage.Open(filepath.Join(t.TempDir(), "web.db"))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })

		back := now.Add(-10 * time.Minute)
		require.NoError(t, storage.NewOfflineStorage(db).RecordOffline(context.Background(), model.OfflineRecord{
			IP: "10.0.0.9", OfflineAt: back.Add(-4500 * time.Millisecond), OnlineAt: &back, DurationMs: 4500,
		}))
		opts.DB = db
	}
	return NewServer(opts), db
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, false)
	w := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"alive"}`, w.Body.String())
}

func TestAPIGetDevices(t *testing.T) {
	s, _ := newTestServer(t, false)

	w := get(t, s, "/api/devices")
	require.Equal(t, http.StatusOK, w.Code)
	var devs []struct {
		IP     string `json:"ip"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &devs))
	require.Len(t, devs, 2)
	assert.Equal(t, "10.0.0.2", devs[0].IP)
	assert.Equal(t, "New", devs[0].Status)

	w = get(t, s, "/api/devices?sort=alive")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &devs))
	assert.Equal(t, "10.0.0.9", devs[0].IP)
}

func TestAPIGetDevice(t *testing.T) {
	s, _ := newTestServer(t, true)

	w := get(t, s, "/api/devices/10.0.0.9")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		IP         string                `json:"ip"`
		Hostname   string                `json:"hostname"`
		History    []model.OfflineRecord `json:"history"`
		TodayCount int                   `json:"today_count"`
		TotalCount int                   `json:"total_count"`
		TotalMs    int64                 `json:"total_duration_ms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "nas", resp.Hostname)
	require.Len(t, resp.History, 1)
	assert.Equal(t, 1, resp.TotalCount)
	assert.Equal(t, int64(4500), resp.TotalMs)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/devices/10.0.0.77").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/devices/not-an-ip").Code)
}

func TestAPIGetOfflineEvents(t *testing.T) {
	s, _ := newTestServer(t, true)

	w := get(t, s, "/api/offline-events?since=1d")
	require.Equal(t, http.StatusOK, w.Code)
	var events []model.OfflineRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "10.0.0.9", events[0].IP)

	w = get(t, s, "/api/offline-events?ip=10.0.0.2")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	assert.Empty(t, events)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/offline-events?since=soon").Code)

	noDB, _ := newTestServer(t, false)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, noDB, "/api/offline-events").Code)
}

func TestAPIGetStats(t *testing.T) {
	s, _ := newTestServer(t, false)

	w := get(t, s, "/api/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var resp StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "10.0.0.0/24", resp.Network)
	assert.Equal(t, 2, resp.Devices)
	assert.Equal(t, 1, resp.Status["Online"])
	assert.Equal(t, 1, resp.Status["New"])
	assert.NotNil(t, resp.Today)
}

func TestDashboardAndReport(t *testing.T) {
	s, _ := newTestServer(t, true)

	w := get(t, s, "/")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "pingwatch 10.0.0.0/24")
	assert.Contains(t, body, "10.0.0.9")
	assert.Contains(t, body, "nas")

	assert.Equal(t, http.StatusNotFound, get(t, s, "/nope").Code)

	w = get(t, s, "/report")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "# pingwatch Offline Report"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "pingwatch_report.md")
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, false)
	get(t, s, "/api/devices")

	w := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `pingwatch_http_requests_total{method="GET",path="GET /api/devices",status="200"} 1`)
}
