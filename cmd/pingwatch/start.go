package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/user/pingwatch/internal/daemon"
	"github.com/user/pingwatch/internal/metrics"
	"github.com/user/pingwatch/internal/monitor"
	"github.com/user/pingwatch/internal/storage"
	"github.com/user/pingwatch/internal/util"
)

var (
	foreground   bool
	withWeb      bool
	startWebPort int
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the pingwatch daemon",
	Long: `Start the monitor as a background daemon. It scans the configured
network, stores offline intervals, purges old history and keeps a status
file for the status command.

Examples:
  pingwatch start -n 192.168.1.0/24
  pingwatch start --foreground --with-web`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().AddFlagSet(scanFlags)
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false,
		"Run in foreground instead of daemonizing")
	startCmd.Flags().BoolVar(&withWeb, "with-web", false,
		"Also start the web dashboard server")
	startCmd.Flags().IntVar(&startWebPort, "web-port", 0,
		"Port for web server (when using --with-web)")
}

func runStart(cmd *cobra.Command, args []string) error {
	running, pid := daemon.CheckRunning(cfg.DataDir)
	if running {
		fmt.Printf("Daemon is already running (PID %d)\n", pid)
		return nil
	}
	if cfg.Network == "" {
		return fmt.Errorf("no network configured: pass --network or set network in the config file")
	}

	if foreground {
		return runForeground(cmd.Context())
	}

	return runDaemon(cmd)
}

func runForeground(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	m := metrics.New()
	tracker := monitor.NewTracker()
	mon, _, err := newMonitor(tracker, db, m)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create monitor: %w", err)
	}

	d := daemon.New(cfg, mon, db)
	if err := d.Start(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	if withWeb {
		port := webPortOr(startWebPort)
		srv := newWebServer(port, tracker, db, m)
		go func() {
			if err := srv.Start(ctx); err != nil {
				util.Error("Web server error: %v", err)
			}
		}()
		fmt.Printf("Web dashboard: http://localhost:%d\n", port)
	}

	fmt.Printf("pingwatch daemon monitoring %s. Press Ctrl+C to stop.\n", cfg.Network)

	// SIGHUP requests an immediate scan.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if d.ScanNow() {
					util.Info("Scan requested")
				}
			}
		}
	}()

	runErr := d.Wait()
	if err := d.Stop(); err != nil {
		util.Warn("Failed to close database: %v", err)
	}
	return runErr
}

func runDaemon(cmd *cobra.Command) error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// Forward every flag the user set, persistent ones included.
	args := []string{executable, "start", "--foreground"}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		value := f.Value.String()
		switch f.Name {
		case "foreground":
			return
		case "config":
			// The daemon runs from /.
			if abs, err := filepath.Abs(value); err == nil {
				value = abs
			}
		}
		args = append(args, fmt.Sprintf("--%s=%s", f.Name, value))
	})

	if err := util.EnsureDir(cfg.DataDir); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	procAttr := &os.ProcAttr{
		Dir:   "/",
		Env:   os.Environ(),
		Files: []*os.File{nil, logFile, logFile},
		Sys:   detachAttr(),
	}

	proc, err := os.StartProcess(executable, args, procAttr)
	if err != nil {
		return fmt.Errorf("failed to start daemon process: %w", err)
	}

	if err := proc.Release(); err != nil {
		util.Warn("Failed to release process: %v", err)
	}

	fmt.Printf("pingwatch daemon started (PID %d)\n", proc.Pid)
	fmt.Printf("Logs: %s\n", cfg.LogFile)
	if withWeb {
		fmt.Printf("Web dashboard: http://localhost:%d\n", webPortOr(startWebPort))
	}

	return nil
}
