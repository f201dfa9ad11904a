package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/monitor"
)

// ChangePrinter writes each scan cycle's changes to a stream. It implements
// monitor.Sink.
type ChangePrinter struct {
	mu     sync.Mutex
	w      io.Writer
	format string
	header bool

	added, removed, stable lipgloss.Style
}

// NewChangePrinter creates a sink writing text, json or csv.
func NewChangePrinter(w io.Writer, format string) *ChangePrinter {
	r := lipgloss.NewRenderer(w)
	return &ChangePrinter{
		w:       w,
		format:  format,
		added:   r.NewStyle().Foreground(lipgloss.Color("46")).Bold(true),
		removed: r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		stable:  r.NewStyle().Foreground(lipgloss.Color("39")),
	}
}

// Report implements monitor.Sink.
func (p *ChangePrinter) Report(c *monitor.Cycle, tracker *monitor.Tracker) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.format {
	case FormatJSON:
		p.writeJSON(c, tracker)
	case FormatCSV:
		p.writeCSV(c, tracker)
	default:
		p.writeText(c)
	}
}

func (p *ChangePrinter) writeText(c *monitor.Cycle) {
	if len(c.Changes) == 0 {
		fmt.Fprintln(p.w, "No changes detected in the network.")
		return
	}

	rule := strings.Repeat("-", 60)
	fmt.Fprintf(p.w, "Network scan at %s\n", c.Start.Format("2006-01-02 15:04:05"))
	fmt.Fprintln(p.w, rule)
	for _, ch := range c.Changes {
		var mark string
		switch ch.Kind {
		case model.Added:
			mark = p.added.Render("[+]")
		case model.Removed:
			mark = p.removed.Render("[-]")
		default:
			mark = p.stable.Render("[=]")
		}
		fmt.Fprintf(p.w, "%s %s\n", mark, DeviceLine(ch.Device))
	}
	fmt.Fprintf(p.w, "%s\n\n", rule)
}

// DeviceLine renders "ip | MAC: .. | Host: .. | Vendor: ..", omitting
// unknown fields.
func DeviceLine(d model.DeviceInfo) string {
	parts := []string{d.Addr.String()}
	if d.MAC != "" {
		parts = append(parts, "MAC: "+d.MAC)
	}
	if d.Hostname != "" {
		parts = append(parts, "Host: "+d.Hostname)
	}
	if d.Vendor != "" {
		parts = append(parts, "Vendor: "+d.Vendor)
	}
	return strings.Join(parts, " | ")
}

type changeEntry struct {
	Status    string     `json:"status"`
	IP        string     `json:"ip"`
	MAC       string     `json:"mac"`
	Hostname  string     `json:"hostname"`
	Vendor    string     `json:"vendor"`
	FirstSeen time.Time  `json:"first_seen"`
	LastSeen  time.Time  `json:"last_seen"`
	OfflineAt *time.Time `json:"offline_at"`
}

func entries(c *monitor.Cycle, tracker *monitor.Tracker) []changeEntry {
	out := make([]changeEntry, 0, len(c.Changes))
	for _, ch := range c.Changes {
		d := ch.Device
		e := changeEntry{
			Status:    ch.Kind.String(),
			IP:        d.Addr.String(),
			MAC:       d.MAC,
			Hostname:  d.Hostname,
			Vendor:    d.Vendor,
			FirstSeen: d.FirstSeen,
			LastSeen:  d.LastSeen,
		}
		if tracker != nil {
			if rec, ok := tracker.Get(d.Addr); ok {
				n := len(rec.OfflineEvents)
				if n > 0 && rec.OfflineEvents[n-1].Open() {
					at := rec.OfflineEvents[n-1].OfflineAt
					e.OfflineAt = &at
				}
			}
		}
		out = append(out, e)
	}
	return out
}

func (p *ChangePrinter) writeJSON(c *monitor.Cycle, tracker *monitor.Tracker) {
	doc := struct {
		Timestamp time.Time     `json:"timestamp"`
		Devices   []changeEntry `json:"devices"`
	}{c.Start, entries(c, tracker)}

	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	enc.Encode(doc)
}

func (p *ChangePrinter) writeCSV(c *monitor.Cycle, tracker *monitor.Tracker) {
	cw := csv.NewWriter(p.w)
	if !p.header {
		cw.Write([]string{"status", "ip", "mac", "hostname", "vendor", "first_seen", "last_seen", "offline_at"})
		p.header = true
	}
	for _, e := range entries(c, tracker) {
		offline := ""
		if e.OfflineAt != nil {
			offline = e.OfflineAt.Format(time.RFC3339)
		}
		cw.Write([]string{
			e.Status, e.IP, e.MAC, e.Hostname, e.Vendor,
			e.FirstSeen.Format(time.RFC3339), e.LastSeen.Format(time.RFC3339), offline,
		})
	}
	cw.Flush()
}
