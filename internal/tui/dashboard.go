package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"

	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/monitor"
)

const maxDetailEvents = 10

// Detail is the state of the device detail screen.
type Detail struct {
	Record     model.DeviceRecord
	Loading    bool
	History    []model.OfflineRecord
	TodayCount int
	TodayAvgMs float64
	Err        error
}

func columns(width int) []table.Column {
	cols := []table.Column{
		{Title: "Status", Width: 11},
		{Title: "IP", Width: 16},
		{Title: "Hostname", Width: 22},
		{Title: "MAC", Width: 18},
		{Title: "Vendor", Width: 12},
		{Title: "Alive", Width: 10},
		{Title: "Last Seen", Width: 10},
	}
	// Give spare width to the hostname column.
	used := 0
	for _, c := range cols {
		used += c.Width + 2
	}
	if extra := width - used - 2; extra > 0 {
		cols[2].Width += extra
	}
	return cols
}

func rows(devs []model.DeviceRecord, now time.Time) []table.Row {
	out := make([]table.Row, 0, len(devs))
	for _, d := range devs {
		out = append(out, table.Row{
			statusIcon(d.Status),
			d.Addr.String(),
			orDash(d.Hostname),
			orDash(d.MAC),
			orDash(d.Vendor),
			formatAge(d.AliveFor()),
			formatAge(now.Sub(d.LastSeen)) + " ago",
		})
	}
	return out
}

func renderList(network string, devs []model.DeviceRecord, sort monitor.SortMode, t table.Model, width int) string {
	var sb strings.Builder

	header := HeaderStyle.Width(max(width, 40)).Render("pingwatch: " + network)
	sb.WriteString(header)
	sb.WriteString("\n\n")

	counts := make(map[model.Status]int)
	for _, d := range devs {
		counts[d.Status]++
	}
	up := counts[model.StatusNew] + counts[model.StatusOnline]
	sb.WriteString(fmt.Sprintf("%s %s %d/%d up",
		LabelStyle.Render("Devices:"), RenderBar(up, len(devs), 20), up, len(devs)))
	for st := model.StatusUnstable; st <= model.StatusLost; st++ {
		if n := counts[st]; n > 0 {
			sb.WriteString("  " + StatusStyle(st).Render(fmt.Sprintf("%d %s", n, st)))
		}
	}
	sb.WriteString("\n\n")

	sb.WriteString(SectionStyle.Render(t.View()))
	sb.WriteString("\n")

	help := HelpStyle.Render(fmt.Sprintf("↑/↓ j/k move • pgup/pgdn page • enter details • s sort (%s) • q quit", sort))
	sb.WriteString(help)
	return sb.String()
}

func renderDetail(d *Detail, width int, now time.Time) string {
	r := d.Record
	var sb strings.Builder

	sb.WriteString(HeaderStyle.Width(max(width, 40)).Render("Device " + r.Addr.String()))
	sb.WriteString("\n\n")

	line := func(label, value string) string {
		return LabelStyle.Render(label) + " " + ValueStyle.Render(value) + "\n"
	}

	var info strings.Builder
	info.WriteString(LabelStyle.Render("Status:") + " " + StatusStyle(r.Status).Render(r.Status.String()) + "\n")
	info.WriteString(line("Hostname:", orDash(r.Hostname)))
	info.WriteString(line("MAC:", orDash(r.MAC)))
	info.WriteString(line("Vendor:", orDash(r.Vendor)))
	info.WriteString(line("First seen:", r.FirstSeen.Format(time.DateTime)))
	info.WriteString(line("Last seen:", r.LastSeen.Format(time.DateTime)))
	info.WriteString(line("Alive for:", formatAge(r.AliveFor())))
	info.WriteString(line("Status since:", formatAge(now.Sub(r.LastStatusChange))))
	info.WriteString(line("Failures:", fmt.Sprintf("%d", r.ConsecutiveFailures)))
	sb.WriteString(SectionStyle.Render(SectionTitleStyle.Render("Device") + "\n" + strings.TrimRight(info.String(), "\n")))
	sb.WriteString("\n")

	var events strings.Builder
	if len(r.OfflineEvents) == 0 {
		events.WriteString(DimStyle.Render("No offline events this session"))
	}
	start := max(0, len(r.OfflineEvents)-maxDetailEvents)
	for i := len(r.OfflineEvents) - 1; i >= start; i-- {
		ev := r.OfflineEvents[i]
		if ev.Open() {
			events.WriteString(fmt.Sprintf("%s  down for %s\n",
				ev.OfflineAt.Format(time.DateTime), formatAge(now.Sub(ev.OfflineAt))))
			continue
		}
		events.WriteString(fmt.Sprintf("%s  %s\n",
			ev.OfflineAt.Format(time.DateTime), formatMs(ev.DurationMs)))
	}
	sb.WriteString(SectionStyle.Render(SectionTitleStyle.Render("Offline Events") + "\n" + strings.TrimRight(events.String(), "\n")))
	sb.WriteString("\n")

	var hist strings.Builder
	switch {
	case d.Loading:
		hist.WriteString(DimStyle.Render("Loading..."))
	case d.Err != nil:
		hist.WriteString(ErrorStyle.Render("Error: " + d.Err.Error()))
	default:
		hist.WriteString(line("Today:", fmt.Sprintf("%d outages, avg %s", d.TodayCount, formatMs(int64(d.TodayAvgMs)))))
		for i, ev := range d.History {
			if i == maxDetailEvents {
				hist.WriteString(DimStyle.Render(fmt.Sprintf("... and %d more", len(d.History)-maxDetailEvents)))
				break
			}
			hist.WriteString(fmt.Sprintf("%s  %s\n", ev.OfflineAt.Format(time.DateTime), formatMs(ev.DurationMs)))
		}
	}
	sb.WriteString(SectionStyle.Render(SectionTitleStyle.Render("History") + "\n" + strings.TrimRight(hist.String(), "\n")))
	sb.WriteString("\n")

	sb.WriteString(HelpStyle.Render("esc back • q quit"))
	return sb.String()
}

func formatAge(d time.Duration) string {
	switch {
	case d < 0:
		return "0s"
	case d < time.Minute:
		return d.Round(time.Second).String()
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd%02dh", int(d.Hours())/24, int(d.Hours())%24)
	}
}

func formatMs(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return formatAge(time.Duration(ms) * time.Millisecond)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
