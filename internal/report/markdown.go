package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/user/pingwatch/internal/model"
)

// FormatMarkdown renders a report as Markdown.
func FormatMarkdown(data *ReportData) string {
	var sb strings.Builder

	sb.WriteString("# pingwatch Offline Report\n\n")
	sb.WriteString(fmt.Sprintf("**Period:** %s to %s  \n",
		data.Since.Format("2006-01-02 15:04"), data.Until.Format("2006-01-02 15:04")))
	sb.WriteString(fmt.Sprintf("**Generated:** %s  \n", data.GeneratedAt.Format("2006-01-02 15:04:05")))
	if data.IP != "" {
		sb.WriteString(fmt.Sprintf("**Device:** %s  \n", data.IP))
	}
	sb.WriteString("\n")

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Offline events | %d |\n", len(data.Events)))
	sb.WriteString(fmt.Sprintf("| Devices affected | %d |\n", len(data.Devices)))
	sb.WriteString(fmt.Sprintf("| Total downtime | %s |\n", formatMs(data.TotalDowntime.Milliseconds())))
	if data.Longest != nil {
		sb.WriteString(fmt.Sprintf("| Longest outage | %s (%s) |\n", data.Longest.IP, formatMs(data.Longest.DurationMs)))
	}
	sb.WriteString(fmt.Sprintf("| Known devices | %d |\n", len(data.Known)))
	for st := model.StatusNew; st <= model.StatusLost; st++ {
		if n := data.StatusCounts[st]; n > 0 {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", st, n))
		}
	}
	sb.WriteString("\n")

	if len(data.Events) == 0 {
		sb.WriteString("No offline events in this period.\n")
		return sb.String()
	}

	sb.WriteString("## Devices\n\n")
	sb.WriteString("| IP | Host | Events | Total downtime | Average |\n")
	sb.WriteString("|----|------|--------|----------------|---------|\n")
	for _, st := range data.Devices {
		sb.WriteString(fmt.Sprintf("| %s | %s | %d | %s | %s |\n",
			st.IP, orDash(shortenHostname(data.Hostname(st.IP))), st.Count,
			formatMs(st.TotalDurationMs), formatMs(int64(st.AvgDurationMs))))
	}
	sb.WriteString("\n")
	sb.WriteString(GenerateOfflinePie(data.Devices))
	sb.WriteString("\n")

	if len(data.Flapping) > 0 {
		sb.WriteString("## Flapping Devices\n\n")
		for _, st := range data.Flapping {
			sb.WriteString(fmt.Sprintf("- **%s** went offline %d times\n", st.IP, st.Count))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Timeline\n\n")
	sb.WriteString(GenerateOfflineGantt(data.Events, func(ip string) string {
		if h := data.Hostname(ip); h != "" {
			return fmt.Sprintf("%s (%s)", ip, shortenHostname(h))
		}
		return ip
	}))
	sb.WriteString("\n")

	sb.WriteString("## Events\n\n")
	sb.WriteString("| IP | Offline at | Back online | Duration |\n")
	sb.WriteString("|----|------------|-------------|----------|\n")
	for _, ev := range data.Events {
		back := "-"
		if ev.OnlineAt != nil {
			back = ev.OnlineAt.Format(time.DateTime)
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			ev.IP, ev.OfflineAt.Format(time.DateTime), back, formatMs(ev.DurationMs)))
	}

	return sb.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
