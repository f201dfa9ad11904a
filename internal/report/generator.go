package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/storage"
	"github.com/user/pingwatch/internal/util"
)

// FlapThreshold is the number of outages in a report window that marks a
// device as flapping.
const FlapThreshold = 3

// Generator creates offline reports from the persisted history.
type Generator struct {
	offline *storage.OfflineStorage
	devices *storage.DeviceStorage
	now     func() time.Time
}

// NewGenerator creates a new report generator.
func NewGenerator(db *storage.DB) *Generator {
	return &Generator{
		offline: storage.NewOfflineStorage(db),
		devices: storage.NewDeviceStorage(db),
		now:     time.Now,
	}
}

// ReportData holds all data for a report.
type ReportData struct {
	GeneratedAt time.Time
	Since       time.Time
	Until       time.Time
	IP          string

	Events        []model.OfflineRecord
	TotalDowntime time.Duration
	Longest       *model.OfflineRecord

	// Devices aggregates Events per address, most affected first.
	Devices  []model.DeviceOfflineStats
	Flapping []model.DeviceOfflineStats

	Known        []model.DeviceRecord
	StatusCounts map[model.Status]int
}

// Hostname returns the last known hostname of ip, if any.
func (d *ReportData) Hostname(ip string) string {
	for _, r := range d.Known {
		if r.Addr.String() == ip {
			return r.Hostname
		}
	}
	return ""
}

// Generate creates a report for the specified time range.
func (g *Generator) Generate(ctx context.Context, opts model.ReportOptions) (*ReportData, error) {
	until := opts.Until
	if until.IsZero() {
		until = g.now()
	}

	data := &ReportData{
		GeneratedAt:  g.now(),
		Since:        opts.Since,
		Until:        until,
		IP:           opts.IP,
		StatusCounts: make(map[model.Status]int),
	}

	events, err := g.offline.EventsBetween(ctx, opts.Since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to get offline events: %w", err)
	}
	for _, ev := range events {
		if opts.IP != "" && ev.IP != opts.IP {
			continue
		}
		data.Events = append(data.Events, ev)
	}

	data.Devices = aggregate(data.Events)
	for i, ev := range data.Events {
		data.TotalDowntime += time.Duration(ev.DurationMs) * time.Millisecond
		if data.Longest == nil || ev.DurationMs > data.Longest.DurationMs {
			data.Longest = &data.Events[i]
		}
	}
	for _, st := range data.Devices {
		if st.Count >= FlapThreshold {
			data.Flapping = append(data.Flapping, st)
		}
	}

	known, err := g.devices.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}
	for _, r := range known {
		if opts.IP != "" && r.Addr.String() != opts.IP {
			continue
		}
		data.Known = append(data.Known, r)
		data.StatusCounts[r.Status]++
	}

	return data, nil
}

func aggregate(events []model.OfflineRecord) []model.DeviceOfflineStats {
	byIP := make(map[string]*model.DeviceOfflineStats)
	for _, ev := range events {
		st, ok := byIP[ev.IP]
		if !ok {
			st = &model.DeviceOfflineStats{IP: ev.IP}
			byIP[ev.IP] = st
		}
		st.Count++
		st.TotalDurationMs += ev.DurationMs
	}

	out := make([]model.DeviceOfflineStats, 0, len(byIP))
	for _, st := range byIP {
		st.AvgDurationMs = float64(st.TotalDurationMs) / float64(st.Count)
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].IP < out[j].IP
	})
	return out
}

// WriteMarkdownFile renders data into a timestamped file under dir and
// returns its path.
func WriteMarkdownFile(data *ReportData, dir string) (string, error) {
	if err := util.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("failed to create report dir: %w", err)
	}
	name := fmt.Sprintf("pingwatch-report-%s.md", data.GeneratedAt.Format("20060102-150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(FormatMarkdown(data)), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}
