// Package tui provides the live monitor dashboard.
package tui

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/monitor"
)

const refreshInterval = time.Second

// History supplies persisted offline events for the detail view.
type History interface {
	EventsByIP(ctx context.Context, ip string) ([]model.OfflineRecord, error)
	TodayStats(ctx context.Context, ip string) (count int, avgMs float64, err error)
}

// App is the dashboard application. It only reads the tracker; the monitor
// loop keeps running independently.
type App struct {
	tracker *monitor.Tracker
	history History
	network string
}

// NewApp creates a dashboard over tracker. history may be nil.
func NewApp(tracker *monitor.Tracker, history History, network string) *App {
	return &App{
		tracker: tracker,
		history: history,
		network: network,
	}
}

// Run starts the dashboard and blocks until the user quits or ctx is done.
func (a *App) Run(ctx context.Context) error {
	p := tea.NewProgram(newAppModel(a.tracker, a.history, a.network), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

type screen int

const (
	listScreen screen = iota
	detailScreen
)

// appModel is the main bubbletea model.
type appModel struct {
	tracker *monitor.Tracker
	history History
	network string

	sort    monitor.SortMode
	screen  screen
	devices []model.DeviceRecord
	detail  *Detail
	table   table.Model
	spinner spinner.Model
	width   int
	height  int
	now     func() time.Time
}

func newAppModel(tracker *monitor.Tracker, history History, network string) appModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(Primary)

	t := table.New(
		table.WithColumns(columns(80)),
		table.WithFocused(true),
		table.WithHeight(15),
		table.WithStyles(tableStyles()),
	)

	m := appModel{
		tracker: tracker,
		history: history,
		network: network,
		table:   t,
		spinner: s,
		width:   80,
		now:     time.Now,
	}
	m.refresh()
	return m
}

// Messages
type tickMsg time.Time

type detailMsg struct {
	addr       netip.Addr
	history    []model.OfflineRecord
	todayCount int
	todayAvgMs float64
	err        error
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init initializes the model.
func (m appModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

// Update handles messages.
func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.screen == detailScreen {
			return m.updateDetail(msg)
		}
		return m.updateList(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetColumns(columns(msg.Width))
		if h := msg.Height - 8; h > 3 {
			m.table.SetHeight(h)
		}

	case tickMsg:
		m.refresh()
		return m, tick()

	case detailMsg:
		if m.screen == detailScreen && m.detail != nil && msg.addr == m.detail.Record.Addr {
			m.detail.Loading = false
			m.detail.History = msg.history
			m.detail.TodayCount = msg.todayCount
			m.detail.TodayAvgMs = msg.todayAvgMs
			m.detail.Err = msg.err
		}

	case spinner.TickMsg:
		if m.tracker.Len() > 0 {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m appModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "s":
		if m.sort == monitor.SortByIP {
			m.sort = monitor.SortByAlive
		} else {
			m.sort = monitor.SortByIP
		}
		m.refresh()
		return m, nil
	case "enter":
		i := m.table.Cursor()
		if i < 0 || i >= len(m.devices) {
			return m, nil
		}
		m.screen = detailScreen
		m.detail = &Detail{Record: m.devices[i], Loading: m.history != nil}
		return m, m.loadDetail(m.devices[i])
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m appModel) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "esc", "backspace", "enter":
		m.screen = listScreen
		m.detail = nil
	}
	return m, nil
}

// refresh copies the tracker state into the table.
func (m *appModel) refresh() {
	m.devices = m.tracker.Snapshot(m.sort)
	m.table.SetRows(rows(m.devices, m.now()))

	if m.detail != nil {
		if rec, ok := m.tracker.Get(m.detail.Record.Addr); ok {
			m.detail.Record = rec
		}
	}
}

func (m appModel) loadDetail(rec model.DeviceRecord) tea.Cmd {
	if m.history == nil {
		return nil
	}
	history := m.history
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		msg := detailMsg{addr: rec.Addr}
		ip := rec.Addr.String()
		msg.history, msg.err = history.EventsByIP(ctx, ip)
		if msg.err == nil {
			msg.todayCount, msg.todayAvgMs, msg.err = history.TodayStats(ctx, ip)
		}
		return msg
	}
}

// View renders the UI.
func (m appModel) View() string {
	if m.screen == detailScreen && m.detail != nil {
		return renderDetail(m.detail, m.width, m.now())
	}
	if len(m.devices) == 0 {
		return LoadingStyle.Render(m.spinner.View() + " Scanning " + m.network + "...")
	}
	return renderList(m.network, m.devices, m.sort, m.table, m.width)
}
