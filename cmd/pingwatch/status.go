package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/user/pingwatch/internal/daemon"
	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/storage"
	"github.com/user/pingwatch/internal/util"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  "Show the state of the pingwatch daemon, its jobs and the stored history.",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		MarginBottom(1)

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("86"))

	runningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("46")).
		Bold(true)

	stoppedStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("196")).
		Bold(true)

	line := func(label, value string) {
		fmt.Printf("  %s %s\n", labelStyle.Render(label), valueStyle.Render(value))
	}

	running, pid := daemon.CheckRunning(cfg.DataDir)

	fmt.Println(titleStyle.Render("pingwatch Status"))

	fmt.Print(labelStyle.Render("Daemon: "))
	if running {
		fmt.Println(runningStyle.Render(fmt.Sprintf("Running (PID %d)", pid)))
	} else {
		fmt.Println(stoppedStyle.Render("Stopped"))
	}

	if sf, err := daemon.ReadStatusFile(cfg.DataDir); err == nil {
		line("Started:", sf.StartTime.Local().Format("2006-01-02 15:04:05"))
		if running {
			line("Uptime:", sf.Uptime)
		}
		line("Network:", sf.Network)
		if !sf.LastScan.IsZero() {
			line("Last scan:", fmt.Sprintf("%s (%d cycles)", sf.LastScan.Local().Format("15:04:05"), sf.Cycles))
		}
		line("Devices:", fmt.Sprintf("%d (%d online, %d offline)", sf.Devices, sf.Online, sf.Offline))

		if len(sf.Jobs) > 0 {
			fmt.Println()
			fmt.Println(titleStyle.Render("Jobs"))

			for _, job := range sf.Jobs {
				state := "idle"
				if job.Running {
					state = "running"
				}
				last := "never"
				if !job.LastRun.IsZero() {
					last = job.LastRun.Local().Format("15:04:05")
				}
				fmt.Printf("  %s: %s (every %s, last: %s, errors: %d)\n",
					labelStyle.Render(job.Name),
					valueStyle.Render(state),
					job.Interval,
					last,
					job.ErrorCount)
				if job.LastError != "" {
					fmt.Printf("    %s\n", stoppedStyle.Render(job.LastError))
				}
			}
		}
	}

	if !util.FileExists(cfg.DBPath) {
		return nil
	}
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	offline := storage.NewOfflineStorage(db)
	devices := storage.NewDeviceStorage(db)

	fmt.Println()
	fmt.Println(titleStyle.Render("Database Stats"))

	if count, err := offline.Count(ctx); err == nil {
		line("Offline events:", fmt.Sprintf("%d", count))
	}
	if counts, err := devices.CountByStatus(ctx); err == nil {
		for _, s := range []model.Status{model.StatusNew, model.StatusOnline, model.StatusUnstable, model.StatusOffline, model.StatusLost} {
			if counts[s] > 0 {
				line(s.String()+":", fmt.Sprintf("%d", counts[s]))
			}
		}
	}

	today, err := offline.DevicesToday(ctx)
	if err == nil && len(today) > 0 {
		fmt.Println()
		fmt.Println(titleStyle.Render("Offline Today"))
		for _, st := range today {
			avg := time.Duration(st.AvgDurationMs) * time.Millisecond
			line(st.IP+":", fmt.Sprintf("%d outages, avg %s", st.Count, avg.Round(time.Second)))
		}
	}

	return nil
}
