// Package monitor discovers hosts on a network and tracks their presence
// over time.
package monitor

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/pingwatch/internal/metrics"
	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/notify"
	"github.com/user/pingwatch/internal/probes"
)

const notifyTimeout = 10 * time.Second

// Sink receives the outcome of every scan cycle. Report must return quickly.
type Sink interface {
	Report(c *Cycle, tracker *Tracker)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(c *Cycle, tracker *Tracker)

func (f SinkFunc) Report(c *Cycle, tracker *Tracker) { f(c, tracker) }

// OfflineStore persists closed offline events.
type OfflineStore interface {
	RecordOffline(ctx context.Context, rec model.OfflineRecord) error
}

// DeviceStore persists the latest view of each device.
type DeviceStore interface {
	SaveDevices(ctx context.Context, recs []model.DeviceRecord) error
}

// CycleScanner runs one scan cycle.
type CycleScanner interface {
	Scan(ctx context.Context) (*Cycle, error)
}

// Options wires the optional collaborators of a Monitor.
type Options struct {
	Interval time.Duration
	Sinks    []Sink
	Offline  OfflineStore
	Devices  DeviceStore
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Monitor runs scan cycles on an interval and feeds the tracker.
type Monitor struct {
	scanner  CycleScanner
	tracker  *Tracker
	opts     Options
	runID    string
	logger   *zap.Logger
	lastScan atomic.Int64
	cycles   atomic.Int64
}

// New creates a monitor. The tracker may be shared with a dashboard or an
// HTTP API; it is safe for concurrent use.
func New(scanner CycleScanner, tracker *Tracker, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	runID := uuid.NewString()
	return &Monitor{
		scanner: scanner,
		tracker: tracker,
		opts:    opts,
		runID:   runID,
		logger:  opts.Logger.With(zap.String("run_id", runID)),
	}
}

// RunID identifies this monitor run in persisted events.
func (m *Monitor) RunID() string { return m.runID }

// Tracker returns the tracker fed by this monitor.
func (m *Monitor) Tracker() *Tracker { return m.tracker }

// LastScan returns when the last cycle completed.
func (m *Monitor) LastScan() time.Time {
	ns := m.lastScan.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Cycles returns how many cycles have completed.
func (m *Monitor) Cycles() int64 { return m.cycles.Load() }

// Run scans until ctx is cancelled. Only ErrPermissionDenied ends it early.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started", zap.Duration("interval", m.opts.Interval))
	defer m.logger.Info("monitor stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := m.RunCycle(ctx); err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, probes.ErrPermissionDenied):
				return err
			default:
				m.logger.Warn("scan cycle failed", zap.Error(err))
			}
		}

		t := time.NewTimer(m.opts.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// RunCycle performs a single scan and dispatches its results.
func (m *Monitor) RunCycle(ctx context.Context) error {
	cycle, err := m.scanner.Scan(ctx)
	if err != nil {
		return err
	}

	closed := m.tracker.Apply(cycle)
	for _, s := range m.opts.Sinks {
		s.Report(cycle, m.tracker)
	}

	for _, rec := range closed {
		rec.RunID = m.runID
		m.logger.Info("device back online",
			zap.String("ip", rec.IP),
			zap.Int64("offline_ms", rec.DurationMs),
		)
		if m.opts.Offline == nil {
			continue
		}
		if err := m.opts.Offline.RecordOffline(ctx, rec); err != nil {
			m.logger.Warn("failed to record offline event", zap.String("ip", rec.IP), zap.Error(err))
		}
	}
	m.opts.Metrics.OfflineClosed(len(closed))

	if m.opts.Devices != nil {
		if err := m.opts.Devices.SaveDevices(ctx, m.tracker.Snapshot(SortByIP)); err != nil {
			m.logger.Warn("failed to save devices", zap.Error(err))
		}
	}

	m.notifyRemoved(ctx, cycle)

	m.opts.Metrics.ObserveCycle(cycle.Duration, cycle.Probed, len(cycle.Seen))
	m.opts.Metrics.SetDevices(m.tracker.Counts())
	m.lastScan.Store(time.Now().UnixNano())
	m.cycles.Add(1)
	return nil
}

// notifyRemoved sends one notification per Removed device concurrently and
// waits for all of them.
func (m *Monitor) notifyRemoved(ctx context.Context, c *Cycle) {
	if m.opts.Notifier == nil {
		return
	}

	var wg sync.WaitGroup
	for _, ch := range c.Changes {
		if ch.Kind != model.Removed {
			continue
		}
		wg.Add(1)
		go func(d model.DeviceInfo) {
			defer wg.Done()
			nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
			defer cancel()

			title, body := notify.OfflineMessage(d)
			err := m.opts.Notifier.Notify(nctx, title, body)
			m.opts.Metrics.Notified(err)
			if err != nil {
				m.logger.Debug("notification failed", zap.Stringer("ip", d.Addr), zap.Error(err))
			}
		}(ch.Device)
	}
	wg.Wait()
}

// Device looks up a tracked device by address string.
func (m *Monitor) Device(ip string) (model.DeviceRecord, bool) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return model.DeviceRecord{}, false
	}
	return m.tracker.Get(addr)
}
