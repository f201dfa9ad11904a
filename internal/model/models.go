// Package model defines core data structures for pingwatch.
package model

import (
	"net/netip"
	"time"
)

// Target is a host to probe: the name the user gave plus its resolved address.
type Target struct {
	Name string     `json:"name"`
	Addr netip.Addr `json:"addr"`
}

// String returns the display name of the target.
func (t Target) String() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Addr.String()
}

// Outcome is the result of a single probe attempt. Err is nil exactly when
// the probe succeeded; RTT, Bytes and TTL are meaningful only then.
type Outcome struct {
	Target Target        `json:"target"`
	Seq    uint16        `json:"seq"`
	RTT    time.Duration `json:"rtt"`
	Bytes  int           `json:"bytes"`
	TTL    int           `json:"ttl"`
	Err    error         `json:"-"`
}

// OK reports whether the probe succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// DeviceInfo describes a host discovered on the monitored network.
type DeviceInfo struct {
	Addr      netip.Addr `json:"ip"`
	Hostname  string     `json:"hostname,omitempty"`
	MAC       string     `json:"mac,omitempty"`
	Vendor    string     `json:"vendor,omitempty"`
	FirstSeen time.Time  `json:"first_seen"`
	LastSeen  time.Time  `json:"last_seen"`
}

// ChangeKind classifies a device within one scan cycle.
type ChangeKind int

const (
	Added ChangeKind = iota
	Removed
	Stable
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Stable:
		return "stable"
	default:
		return "unknown"
	}
}

// ScanChange is one entry of a scan cycle's report.
type ScanChange struct {
	Kind   ChangeKind `json:"kind"`
	Device DeviceInfo `json:"device"`
}

// Status is the presence state of a tracked device.
type Status int

const (
	StatusNew Status = iota
	StatusOnline
	StatusUnstable
	StatusOffline
	StatusLost
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "New"
	case StatusOnline:
		return "Online"
	case StatusUnstable:
		return "Unstable"
	case StatusOffline:
		return "Offline"
	case StatusLost:
		return "Lost"
	default:
		return "Unknown"
	}
}

// ParseStatus is the inverse of String; unknown names map to StatusNew.
func ParseStatus(s string) Status {
	for st := StatusNew; st <= StatusLost; st++ {
		if st.String() == s {
			return st
		}
	}
	return StatusNew
}

// Rank orders statuses for display: reachable first, gone last.
func (s Status) Rank() int {
	switch s {
	case StatusNew, StatusOnline:
		return 0
	case StatusUnstable:
		return 1
	default:
		return 2
	}
}

// MarshalText renders the status name in JSON output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// OfflineEvent is an interval during which a device was considered down.
// OnlineAt is nil while the event is open.
type OfflineEvent struct {
	OfflineAt  time.Time  `json:"offline_at"`
	OnlineAt   *time.Time `json:"online_at,omitempty"`
	DurationMs int64      `json:"duration_ms"`
}

// Open reports whether the device has not come back yet.
func (e OfflineEvent) Open() bool { return e.OnlineAt == nil }

// DeviceRecord is the tracker's long-lived view of one device.
type DeviceRecord struct {
	DeviceInfo
	Status              Status         `json:"status"`
	LastStatusChange    time.Time      `json:"last_status_change"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	LastFailure         time.Time      `json:"last_failure,omitempty"`
	OfflineEvents       []OfflineEvent `json:"offline_events"`
}

// AliveFor is how long the device has been observed.
func (r DeviceRecord) AliveFor() time.Duration {
	return r.LastSeen.Sub(r.FirstSeen)
}

// LastOfflineAt returns the start of the most recent offline event.
func (r DeviceRecord) LastOfflineAt() (time.Time, bool) {
	if len(r.OfflineEvents) == 0 {
		return time.Time{}, false
	}
	return r.OfflineEvents[len(r.OfflineEvents)-1].OfflineAt, true
}

// OfflineRecord is a closed offline event as persisted.
type OfflineRecord struct {
	ID         int64      `json:"id"`
	RunID      string     `json:"run_id,omitempty"`
	IP         string     `json:"ip"`
	OfflineAt  time.Time  `json:"offline_at"`
	OnlineAt   *time.Time `json:"online_at"`
	DurationMs int64      `json:"duration_ms"`
	CreatedAt  time.Time  `json:"created_at"`
}

// DeviceOfflineStats aggregates offline events for one address.
type DeviceOfflineStats struct {
	IP              string  `json:"ip"`
	Count           int     `json:"count"`
	TotalDurationMs int64   `json:"total_duration_ms"`
	AvgDurationMs   float64 `json:"avg_duration_ms"`
}

// DaemonStatus is the snapshot the daemon publishes to its status file.
type DaemonStatus struct {
	Running   bool        `json:"running"`
	PID       int         `json:"pid"`
	StartTime time.Time   `json:"start_time"`
	Uptime    string      `json:"uptime"`
	Network   string      `json:"network"`
	LastScan  time.Time   `json:"last_scan,omitempty"`
	Cycles    int64       `json:"cycles"`
	Devices   int         `json:"devices"`
	Online    int         `json:"online"`
	Offline   int         `json:"offline"`
	Jobs      []JobStatus `json:"jobs"`
}

// JobStatus represents the status of a scheduled job.
type JobStatus struct {
	Name       string        `json:"name"`
	Interval   time.Duration `json:"interval"`
	LastRun    time.Time     `json:"last_run"`
	NextRun    time.Time     `json:"next_run"`
	LastError  string        `json:"last_error,omitempty"`
	ErrorCount int           `json:"error_count"`
	Running    bool          `json:"running"`
}

// ReportOptions defines options for report generation.
type ReportOptions struct {
	Since      time.Time `json:"since"`
	Until      time.Time `json:"until"`
	Format     string    `json:"format"`
	OutputPath string    `json:"output_path"`
	IP         string    `json:"ip,omitempty"`
}
