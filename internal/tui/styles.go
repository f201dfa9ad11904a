package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/user/pingwatch/internal/model"
)

var (
	// Colors
	Primary   = lipgloss.Color("205")
	Secondary = lipgloss.Color("86")
	Subtle    = lipgloss.Color("241")
	Success   = lipgloss.Color("46")
	Warning   = lipgloss.Color("214")
	Error     = lipgloss.Color("196")
	Gone      = lipgloss.Color("245")

	HeaderStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("15")).
		Background(Primary).
		Padding(0, 2).
		Align(lipgloss.Center)

	SectionStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Subtle).
		Padding(0, 1)

	SectionTitleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary)

	LabelStyle = lipgloss.NewStyle().
		Foreground(Subtle).
		Width(16)

	ValueStyle = lipgloss.NewStyle().
		Foreground(Secondary).
		Bold(true)

	ErrorStyle = lipgloss.NewStyle().
		Foreground(Error).
		Bold(true)

	DimStyle = lipgloss.NewStyle().
		Foreground(Subtle).
		Italic(true)

	HelpStyle = lipgloss.NewStyle().
		Foreground(Subtle).
		MarginTop(1)

	LoadingStyle = lipgloss.NewStyle().
		Foreground(Primary).
		Padding(2, 4)
)

// StatusStyle colors a presence status.
func StatusStyle(s model.Status) lipgloss.Style {
	switch s {
	case model.StatusNew:
		return lipgloss.NewStyle().Foreground(Secondary).Bold(true)
	case model.StatusOnline:
		return lipgloss.NewStyle().Foreground(Success)
	case model.StatusUnstable:
		return lipgloss.NewStyle().Foreground(Warning)
	case model.StatusOffline:
		return lipgloss.NewStyle().Foreground(Error).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(Gone).Strikethrough(true)
	}
}

// statusIcon is plain text so the table can measure it.
func statusIcon(s model.Status) string {
	switch s {
	case model.StatusNew:
		return "+ New"
	case model.StatusOnline:
		return "● Online"
	case model.StatusUnstable:
		return "◐ Unstable"
	case model.StatusOffline:
		return "○ Offline"
	default:
		return "✗ Lost"
	}
}

func tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(Subtle).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	return s
}

// RenderBar renders a progress bar.
func RenderBar(value, max int, width int) string {
	if max == 0 {
		max = 1
	}

	filled := int(float64(value) / float64(max) * float64(width))
	if filled > width {
		filled = width
	}

	return lipgloss.NewStyle().Foreground(Secondary).
		Render(strings.Repeat("█", filled) + strings.Repeat("░", width-filled))
}
