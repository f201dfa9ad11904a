package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/user/pingwatch/internal/model"
)

const ganttLayout = "2006-01-02 15:04:05"

// GenerateOfflineGantt creates a Mermaid gantt chart with one section per
// device and one bar per outage. label maps an IP to its section title.
func GenerateOfflineGantt(events []model.OfflineRecord, label func(ip string) string) string {
	if len(events) == 0 {
		return ""
	}

	var order []string
	byIP := make(map[string][]model.OfflineRecord)
	for _, ev := range events {
		if _, ok := byIP[ev.IP]; !ok {
			order = append(order, ev.IP)
		}
		byIP[ev.IP] = append(byIP[ev.IP], ev)
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("gantt\n")
	sb.WriteString("    title Offline intervals\n")
	sb.WriteString("    dateFormat YYYY-MM-DD HH:mm:ss\n")
	sb.WriteString("    axisFormat %m-%d %H:%M\n")

	for _, ip := range order {
		title := ip
		if label != nil {
			title = label(ip)
		}
		sb.WriteString(fmt.Sprintf("    section %s\n", sanitize(title)))
		for _, ev := range byIP[ip] {
			start := ev.OfflineAt
			end := start.Add(time.Duration(ev.DurationMs) * time.Millisecond)
			if ev.OnlineAt != nil {
				end = *ev.OnlineAt
			}
			// Bars shorter than the date format's resolution are not drawn.
			if end.Sub(start) < time.Second {
				end = start.Add(time.Second)
			}
			sb.WriteString(fmt.Sprintf("    %s :crit, %s, %s\n",
				sanitize("down "+formatMs(ev.DurationMs)), start.Format(ganttLayout), end.Format(ganttLayout)))
		}
	}

	sb.WriteString("```\n")
	return sb.String()
}

// GenerateOfflinePie creates a Mermaid pie chart of outages per device.
func GenerateOfflinePie(stats []model.DeviceOfflineStats) string {
	if len(stats) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("pie title Offline events by device\n")
	for _, st := range stats {
		sb.WriteString(fmt.Sprintf("    \"%s\" : %d\n", st.IP, st.Count))
	}
	sb.WriteString("```\n")
	return sb.String()
}

func shortenHostname(hostname string) string {
	if len(hostname) > 20 {
		parts := strings.Split(hostname, ".")
		if len(parts) > 2 {
			return parts[0] + "..."
		}
		return hostname[:17] + "..."
	}
	return hostname
}

// sanitize strips characters that end a Mermaid task name or section.
func sanitize(s string) string {
	return strings.NewReplacer(":", " ", "#", "", ";", " ").Replace(s)
}

func formatMs(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	if d < time.Second {
		return fmt.Sprintf("%dms", ms)
	}
	return d.Round(100 * time.Millisecond).String()
}
