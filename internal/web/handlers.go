package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/monitor"
	"github.com/user/pingwatch/internal/report"
	"github.com/user/pingwatch/internal/storage"
	"github.com/user/pingwatch/internal/util"
)

var errNoHistory = errors.New("offline history is not available without a database")

// Handlers contains HTTP handlers.
type Handlers struct {
	network string
	tracker *monitor.Tracker
	db      *storage.DB
	offline *storage.OfflineStorage
	logger  *zap.Logger
}

// NewHandlers creates new handlers.
func NewHandlers(opts Options) *Handlers {
	h := &Handlers{
		network: opts.Network,
		tracker: opts.Tracker,
		db:      opts.DB,
		logger:  opts.Logger,
	}
	if opts.DB != nil {
		h.offline = storage.NewOfflineStorage(opts.DB)
	}
	return h
}

// Healthz reports that the process is serving.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "alive"})
}

// Dashboard serves the HTML device overview.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	data := dashboardData{
		Network:     h.network,
		GeneratedAt: time.Now(),
		Counts:      h.tracker.Counts(),
		Devices:     h.tracker.Snapshot(monitor.SortByIP),
	}
	if h.offline != nil {
		if today, err := h.offline.DevicesToday(r.Context()); err == nil {
			data.Today = today
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTemplate.Execute(w, data); err != nil {
		h.logger.Warn("failed to render dashboard", zap.Error(err))
	}
}

// APIGetDevices returns the tracked devices. ?sort=alive orders by alive
// duration instead of address.
func (h *Handlers) APIGetDevices(w http.ResponseWriter, r *http.Request) {
	mode := monitor.SortByIP
	if r.URL.Query().Get("sort") == "alive" {
		mode = monitor.SortByAlive
	}
	writeJSON(w, h.tracker.Snapshot(mode))
}

// DeviceResponse is one device with its persisted history.
type DeviceResponse struct {
	model.DeviceRecord
	History         []model.OfflineRecord `json:"history"`
	TodayCount      int                   `json:"today_count"`
	TodayAvgMs      float64               `json:"today_avg_duration_ms"`
	TotalCount      int                   `json:"total_count"`
	TotalDurationMs int64                 `json:"total_duration_ms"`
}

// APIGetDevice returns one tracked device.
func (h *Handlers) APIGetDevice(w http.ResponseWriter, r *http.Request) {
	addr, err := netip.ParseAddr(r.PathValue("ip"))
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	rec, ok := h.tracker.Get(addr)
	if !ok {
		writeError(w, errors.New("device not found"), http.StatusNotFound)
		return
	}

	resp := DeviceResponse{DeviceRecord: rec, History: []model.OfflineRecord{}}
	if h.offline != nil {
		ip := addr.String()
		ctx := r.Context()
		if resp.History, err = h.offline.EventsByIP(ctx, ip); err != nil {
			writeError(w, err, http.StatusInternalServerError)
			return
		}
		if resp.History == nil {
			resp.History = []model.OfflineRecord{}
		}
		if resp.TodayCount, resp.TodayAvgMs, err = h.offline.TodayStats(ctx, ip); err != nil {
			writeError(w, err, http.StatusInternalServerError)
			return
		}
		if resp.TotalCount, resp.TotalDurationMs, err = h.offline.TotalStats(ctx, ip); err != nil {
			writeError(w, err, http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, resp)
}

// APIGetOfflineEvents returns persisted offline events. Query parameters:
// since (duration, default 24h, accepts d/w units) and ip.
func (h *Handlers) APIGetOfflineEvents(w http.ResponseWriter, r *http.Request) {
	if h.offline == nil {
		writeError(w, errNoHistory, http.StatusServiceUnavailable)
		return
	}

	window := 24 * time.Hour
	if s := r.URL.Query().Get("since"); s != "" {
		d, err := util.ParseDuration(s)
		if err != nil {
			writeError(w, err, http.StatusBadRequest)
			return
		}
		window = d
	}

	now := time.Now()
	events, err := h.offline.EventsBetween(r.Context(), now.Add(-window), now)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}

	ip := r.URL.Query().Get("ip")
	out := make([]model.OfflineRecord, 0, len(events))
	for _, ev := range events {
		if ip == "" || ev.IP == ip {
			out = append(out, ev)
		}
	}
	writeJSON(w, out)
}

// StatsResponse summarizes the monitor.
type StatsResponse struct {
	Network string                     `json:"network"`
	Devices int                        `json:"devices"`
	Status  map[string]int             `json:"status"`
	Today   []model.DeviceOfflineStats `json:"offline_today"`
}

// APIGetStats returns device counts and today's offline statistics.
func (h *Handlers) APIGetStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Network: h.network,
		Devices: h.tracker.Len(),
		Status:  make(map[string]int),
		Today:   []model.DeviceOfflineStats{},
	}
	for st, n := range h.tracker.Counts() {
		resp.Status[st.String()] = n
	}

	if h.offline != nil {
		today, err := h.offline.DevicesToday(r.Context())
		if err != nil {
			writeError(w, err, http.StatusInternalServerError)
			return
		}
		if today != nil {
			resp.Today = today
		}
	}
	writeJSON(w, resp)
}

// DownloadReport serves the last 24 hours as a Markdown report.
func (h *Handlers) DownloadReport(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, errNoHistory, http.StatusServiceUnavailable)
		return
	}

	gen := report.NewGenerator(h.db)
	data, err := gen.Generate(r.Context(), model.ReportOptions{
		Since: time.Now().Add(-24 * time.Hour),
		Until: time.Now(),
		IP:    r.URL.Query().Get("ip"),
	})
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=pingwatch_report.md")
	w.Write([]byte(report.FormatMarkdown(data)))
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
