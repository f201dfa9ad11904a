// Package report renders probe results, scan changes and offline reports.
package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/probes"
	"github.com/user/pingwatch/internal/stats"
)

// Output formats shared by the summary and change printers.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// ParseFormat validates an output format name.
func ParseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text, json or csv)", s)
	}
}

// FormatDuration renders an RTT the way the reply lines show it.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%d µs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%.2f ms", float64(d)/float64(time.Millisecond))
	default:
		return fmt.Sprintf("%.2f s", d.Seconds())
	}
}

// Printer writes ping-style lines for a probe run.
type Printer struct {
	w          io.Writer
	Timestamps bool
	Quiet      bool

	now  func() time.Time
	good lipgloss.Style
	bad  lipgloss.Style
}

// NewPrinter creates a printer. Colors are used only when w is a terminal.
func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:    w,
		now:  time.Now,
		good: r.NewStyle().Foreground(lipgloss.Color("46")),
		bad:  r.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

// Start prints the banner for one target.
func (p *Printer) Start(t model.Target, size int) {
	fmt.Fprintf(p.w, "PING %s (%s): %d data bytes\n", t, t.Addr, size)
}

// Outcome prints one reply, timeout or error line. Quiet suppresses it.
func (p *Printer) Outcome(o model.Outcome) {
	if p.Quiet {
		return
	}

	prefix := ""
	if p.Timestamps {
		prefix = "[" + p.now().Format("15:04:05.000") + "] "
	}

	addr := o.Target.Addr.String()
	switch {
	case o.OK():
		fmt.Fprintf(p.w, "%s%d bytes from %s: icmp_seq=%d ttl=%d time=%s\n",
			prefix, o.Bytes, addr, o.Seq, o.TTL, p.good.Render(FormatDuration(o.RTT)))
	case errors.Is(o.Err, probes.ErrTimeout):
		fmt.Fprintf(p.w, "%sRequest timeout for icmp_seq=%d (%s)\n", prefix, o.Seq, p.bad.Render(addr))
	default:
		fmt.Fprintf(p.w, "%sError pinging %s (seq=%d): %v\n", prefix, p.bad.Render(addr), o.Seq, o.Err)
	}
}

// Summary prints the closing statistics block of one target.
func (p *Printer) Summary(t model.Target, st *stats.Stats) {
	fmt.Fprintf(p.w, "\n--- %s ping statistics ---\n", t)
	fmt.Fprintf(p.w, "%d packets transmitted, %d received, %.1f%% packet loss\n",
		st.Sent, st.Received, st.LossPercent())

	if st.Received > 0 {
		avg, _ := st.Avg()
		fmt.Fprintf(p.w, "rtt min/avg/max = %s/%s/%s\n",
			FormatDuration(st.Min), FormatDuration(avg), FormatDuration(st.Max))
	}
}

// Summary is the machine-readable statistics of one target.
type Summary struct {
	Host               string  `json:"host"`
	PacketsTransmitted int     `json:"packets_transmitted"`
	PacketsReceived    int     `json:"packets_received"`
	PacketLossPercent  float64 `json:"packet_loss_percent"`
	RTT                RTTms   `json:"rtt_ms"`
}

// RTTms holds round-trip times in milliseconds; zero when nothing came back.
type RTTms struct {
	Min float64 `json:"min"`
	Avg float64 `json:"avg"`
	Max float64 `json:"max"`
}

// NewSummary converts a target's aggregate.
func NewSummary(t model.Target, st *stats.Stats) Summary {
	s := Summary{
		Host:               t.String(),
		PacketsTransmitted: st.Sent,
		PacketsReceived:    st.Received,
		PacketLossPercent:  round(st.LossPercent(), 1),
	}
	if st.Received > 0 {
		avg, _ := st.Avg()
		s.RTT = RTTms{Min: millis(st.Min), Avg: millis(avg), Max: millis(st.Max)}
	}
	return s
}

var csvHeader = []string{
	"host", "packets_transmitted", "packets_received", "packet_loss_percent",
	"rtt_min_ms", "rtt_avg_ms", "rtt_max_ms",
}

// WriteSummaries writes every target of set in the given format. CSV output
// carries a single header line.
func WriteSummaries(w io.Writer, format string, set *stats.Set) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		var err error
		set.Each(func(t model.Target, st *stats.Stats) {
			if err == nil {
				err = enc.Encode(NewSummary(t, st))
			}
		})
		return err

	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
		set.Each(func(t model.Target, st *stats.Stats) {
			s := NewSummary(t, st)
			cw.Write([]string{
				s.Host,
				strconv.Itoa(s.PacketsTransmitted),
				strconv.Itoa(s.PacketsReceived),
				strconv.FormatFloat(s.PacketLossPercent, 'f', 1, 64),
				strconv.FormatFloat(s.RTT.Min, 'f', 3, 64),
				strconv.FormatFloat(s.RTT.Avg, 'f', 3, 64),
				strconv.FormatFloat(s.RTT.Max, 'f', 3, 64),
			})
		})
		cw.Flush()
		return cw.Error()

	default:
		p := NewPrinter(w)
		set.Each(p.Summary)
		return nil
	}
}

func millis(d time.Duration) float64 {
	return round(float64(d)/float64(time.Millisecond), 3)
}

func round(v float64, places int) float64 {
	f := math.Pow(10, float64(places))
	return math.Round(v*f) / f
}
