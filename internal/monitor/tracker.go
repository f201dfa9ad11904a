package monitor

import (
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/user/pingwatch/internal/model"
)

// Hysteresis thresholds, in consecutive failed cycles.
const (
	UnstableThreshold = 2
	OfflineThreshold  = 5
	// LostThreshold moves an Offline device to Lost.
	LostThreshold = 30
)

// SortMode selects the secondary ordering of Snapshot.
type SortMode int

const (
	SortByIP SortMode = iota
	SortByAlive
)

func (m SortMode) String() string {
	if m == SortByAlive {
		return "alive"
	}
	return "ip"
}

// Tracker owns the displayed presence status of every device ever seen.
// All state sits behind one mutex; methods never perform I/O or block
// while holding it.
type Tracker struct {
	mu      sync.Mutex
	devices map[netip.Addr]*model.DeviceRecord
	now     func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		devices: make(map[netip.Addr]*model.DeviceRecord),
		now:     time.Now,
	}
}

// Upsert creates a record for a newly seen device or refreshes the metadata
// of a known one. For an existing record the only status change made here
// is New to Online; everything else is driven by Observe.
func (t *Tracker) Upsert(info model.DeviceInfo, status model.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.upsert(info, status)
}

func (t *Tracker) upsert(info model.DeviceInfo, status model.Status) {
	now := t.now()
	rec, ok := t.devices[info.Addr]
	if !ok {
		if info.FirstSeen.IsZero() {
			info.FirstSeen = now
		}
		if info.LastSeen.IsZero() {
			info.LastSeen = now
		}
		t.devices[info.Addr] = &model.DeviceRecord{
			DeviceInfo:       info,
			Status:           status,
			LastStatusChange: now,
		}
		return
	}

	if info.Hostname != "" {
		rec.Hostname = info.Hostname
	}
	if info.MAC != "" {
		rec.MAC = info.MAC
		rec.Vendor = info.Vendor
	}
	if info.Vendor != "" {
		rec.Vendor = info.Vendor
	}
	if info.LastSeen.After(rec.LastSeen) {
		rec.LastSeen = info.LastSeen
	}
	if rec.Status == model.StatusNew && status == model.StatusOnline {
		t.setStatus(rec, model.StatusOnline, now)
	}
}

// Observe feeds one cycle's probe result for addr into the hysteresis.
// When a success closes an open offline event the closed record is
// returned. Unknown addresses are ignored.
func (t *Tracker) Observe(addr netip.Addr, success bool) *model.OfflineRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.observe(addr, success)
}

func (t *Tracker) observe(addr netip.Addr, success bool) *model.OfflineRecord {
	rec, ok := t.devices[addr]
	if !ok {
		return nil
	}
	now := t.now()

	if success {
		if now.After(rec.LastSeen) {
			rec.LastSeen = now
		}
		if rec.ConsecutiveFailures == 0 {
			return nil
		}

		rec.ConsecutiveFailures = 0
		rec.LastFailure = time.Time{}
		t.setStatus(rec, model.StatusOnline, now)

		if n := len(rec.OfflineEvents); n > 0 && rec.OfflineEvents[n-1].Open() {
			ev := &rec.OfflineEvents[n-1]
			online := now
			ev.OnlineAt = &online
			ev.DurationMs = online.Sub(ev.OfflineAt).Milliseconds()
			return &model.OfflineRecord{
				IP:         addr.String(),
				OfflineAt:  ev.OfflineAt,
				OnlineAt:   ev.OnlineAt,
				DurationMs: ev.DurationMs,
			}
		}
		return nil
	}

	rec.ConsecutiveFailures++
	rec.LastFailure = now

	switch {
	case rec.ConsecutiveFailures == UnstableThreshold:
		t.setStatus(rec, model.StatusUnstable, now)
		rec.OfflineEvents = append(rec.OfflineEvents, model.OfflineEvent{OfflineAt: now})
	case rec.ConsecutiveFailures >= LostThreshold:
		t.markLost(rec, now)
	case rec.ConsecutiveFailures >= OfflineThreshold:
		if rec.Status != model.StatusLost {
			t.setStatus(rec, model.StatusOffline, now)
		}
	}
	return nil
}

// MarkLost moves an Offline device to Lost. Other states are left alone.
func (t *Tracker) MarkLost(addr netip.Addr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.devices[addr]; ok {
		t.markLost(rec, t.now())
	}
}

func (t *Tracker) markLost(rec *model.DeviceRecord, now time.Time) {
	if rec.Status == model.StatusOffline {
		t.setStatus(rec, model.StatusLost, now)
	}
}

func (t *Tracker) setStatus(rec *model.DeviceRecord, s model.Status, now time.Time) {
	if rec.Status != s {
		rec.Status = s
		rec.LastStatusChange = now
	}
}

// Apply folds a scan cycle into the tracker: every responder is upserted
// and observed as a success, every other known device as a failure. The
// scanner's Added/Removed classification only decides whether a responder
// starts as New. Closed offline events are returned for persistence.
func (t *Tracker) Apply(c *Cycle) []model.OfflineRecord {
	added := make(map[netip.Addr]bool)
	for _, ch := range c.Changes {
		if ch.Kind == model.Added {
			added[ch.Device.Addr] = true
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var closed []model.OfflineRecord
	seen := make(map[netip.Addr]bool, len(c.Seen))
	for _, info := range c.Seen {
		seen[info.Addr] = true
		status := model.StatusOnline
		if added[info.Addr] {
			status = model.StatusNew
		}
		t.upsert(info, status)
		if rec := t.observe(info.Addr, true); rec != nil {
			closed = append(closed, *rec)
		}
	}

	for addr := range t.devices {
		if !seen[addr] {
			t.observe(addr, false)
		}
	}
	return closed
}

// Get returns a copy of one device record.
func (t *Tracker) Get(addr netip.Addr) (model.DeviceRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.devices[addr]
	if !ok {
		return model.DeviceRecord{}, false
	}
	return copyRecord(rec), true
}

// Len returns the number of tracked devices.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.devices)
}

// Counts returns the number of devices per status.
func (t *Tracker) Counts() map[model.Status]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	counts := make(map[model.Status]int)
	for _, rec := range t.devices {
		counts[rec.Status]++
	}
	return counts
}

// Snapshot returns copies of all records ordered by status rank. Absent
// devices come most recently gone first; ties fall back to the sort mode.
func (t *Tracker) Snapshot(mode SortMode) []model.DeviceRecord {
	t.mu.Lock()
	out := make([]model.DeviceRecord, 0, len(t.devices))
	for _, rec := range t.devices {
		out = append(out, copyRecord(rec))
	}
	t.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i], out[j], mode)
	})
	return out
}

func less(a, b model.DeviceRecord, mode SortMode) bool {
	if ra, rb := a.Status.Rank(), b.Status.Rank(); ra != rb {
		return ra < rb
	}

	if a.Status.Rank() == 2 {
		ta, _ := a.LastOfflineAt()
		tb, _ := b.LastOfflineAt()
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
	}

	if mode == SortByAlive {
		if da, db := a.AliveFor(), b.AliveFor(); da != db {
			return da > db
		}
	}
	return a.Addr.Less(b.Addr)
}

func copyRecord(rec *model.DeviceRecord) model.DeviceRecord {
	c := *rec
	c.OfflineEvents = make([]model.OfflineEvent, len(rec.OfflineEvents))
	for i, ev := range rec.OfflineEvents {
		if ev.OnlineAt != nil {
			at := *ev.OnlineAt
			ev.OnlineAt = &at
		}
		c.OfflineEvents[i] = ev
	}
	return c
}
