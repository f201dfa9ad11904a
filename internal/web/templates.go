package web

import (
	"html/template"
	"time"

	"github.com/user/pingwatch/internal/model"
)

type dashboardData struct {
	Network     string
	GeneratedAt time.Time
	Counts      map[model.Status]int
	Devices     []model.DeviceRecord
	Today       []model.DeviceOfflineStats
}

var templateFuncs = template.FuncMap{
	"statusClass": func(s model.Status) string {
		switch s {
		case model.StatusNew, model.StatusOnline:
			return "up"
		case model.StatusUnstable:
			return "warn"
		default:
			return "down"
		}
	},
	"since": func(t time.Time) string {
		return time.Since(t).Round(time.Second).String()
	},
	"alive": func(r model.DeviceRecord) string {
		return r.AliveFor().Round(time.Second).String()
	},
	"ms": func(v float64) string {
		return (time.Duration(v) * time.Millisecond).Round(100 * time.Millisecond).String()
	},
	"count": func(counts map[model.Status]int, name string) int {
		return counts[model.ParseStatus(name)]
	},
}

var dashboardTemplate = template.Must(template.New("dashboard.html").Funcs(templateFuncs).Parse(dashboardHTML))

var dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta http-equiv="refresh" content="10">
    <title>pingwatch {{.Network}}</title>
    <style>
        * { box-sizing: border-box; margin: 0; padding: 0; }
        :root {
            --bg-primary: #0a0f0a;
            --bg-card: rgba(0, 40, 0, 0.4);
            --border-color: #1a4a1a;
            --text-primary: #00ff41;
            --text-dim: #336633;
            --warn: #ffaa00;
            --danger: #ff3333;
        }
        body {
            font-family: 'Courier New', monospace;
            background: var(--bg-primary);
            color: var(--text-primary);
            padding: 1.5rem;
        }
        .container { max-width: 1400px; margin: 0 auto; }
        header {
            display: flex;
            justify-content: space-between;
            align-items: baseline;
            margin-bottom: 1.5rem;
            padding-bottom: 1rem;
            border-bottom: 1px solid var(--border-color);
        }
        h1 { font-size: 1.6rem; letter-spacing: 3px; }
        h2 { font-size: 1.1rem; margin: 1.5rem 0 0.5rem; }
        .dim { color: var(--text-dim); }
        .stats { display: flex; gap: 1rem; }
        .stat { background: var(--bg-card); border: 1px solid var(--border-color); padding: 0.8rem 1.2rem; }
        .stat b { display: block; font-size: 1.4rem; }
        table { width: 100%; border-collapse: collapse; background: var(--bg-card); }
        th, td { text-align: left; padding: 0.4rem 0.8rem; border-bottom: 1px solid var(--border-color); }
        th { color: var(--text-dim); }
        .up { color: var(--text-primary); }
        .warn { color: var(--warn); }
        .down { color: var(--danger); }
        .empty-state { color: var(--text-dim); padding: 1rem 0; }
    </style>
</head>
<body>
<div class="container">
    <header>
        <h1>&gt; pingwatch {{.Network}}</h1>
        <span class="dim">{{.GeneratedAt.Format "2006-01-02 15:04:05"}} · <a class="dim" href="/report">report</a> · <a class="dim" href="/metrics">metrics</a></span>
    </header>

    <div class="stats">
        <div class="stat"><b>{{len .Devices}}</b>devices</div>
        <div class="stat up"><b>{{count .Counts "Online"}}</b>online</div>
        <div class="stat up"><b>{{count .Counts "New"}}</b>new</div>
        <div class="stat warn"><b>{{count .Counts "Unstable"}}</b>unstable</div>
        <div class="stat down"><b>{{count .Counts "Offline"}}</b>offline</div>
        <div class="stat down"><b>{{count .Counts "Lost"}}</b>lost</div>
    </div>

    <h2>Devices</h2>
    {{if .Devices}}
    <table>
        <thead><tr><th>Status</th><th>IP</th><th>Hostname</th><th>MAC</th><th>Vendor</th><th>Alive</th><th>Last seen</th></tr></thead>
        <tbody>
        {{range .Devices}}
            <tr>
                <td class="{{statusClass .Status}}">{{.Status}}</td>
                <td><a class="up" href="/api/devices/{{.Addr}}">{{.Addr}}</a></td>
                <td>{{or .Hostname "-"}}</td>
                <td>{{or .MAC "-"}}</td>
                <td>{{or .Vendor "-"}}</td>
                <td>{{alive .}}</td>
                <td>{{since .LastSeen}} ago</td>
            </tr>
        {{end}}
        </tbody>
    </table>
    {{else}}
    <p class="empty-state">&gt; No devices discovered yet</p>
    {{end}}

    <h2>Offline today</h2>
    {{if .Today}}
    <table>
        <thead><tr><th>IP</th><th>Events</th><th>Average</th></tr></thead>
        <tbody>
        {{range .Today}}
            <tr><td>{{.IP}}</td><td>{{.Count}}</td><td>{{ms .AvgDurationMs}}</td></tr>
        {{end}}
        </tbody>
    </table>
    {{else}}
    <p class="empty-state">&gt; No offline events today</p>
    {{end}}
</div>
</body>
</html>
`
