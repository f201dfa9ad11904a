package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/pingwatch/internal/metrics"
	"github.com/user/pingwatch/internal/monitor"
	"github.com/user/pingwatch/internal/storage"
)

var webPort int

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Start the web dashboard",
	Long: `Serve the stored device list and offline history over HTTP without
scanning. Run monitor --with-web or start --with-web for live data.

The web server provides:
- A device dashboard
- JSON API under /api (devices, offline-events, stats)
- Markdown report download at /report
- Prometheus metrics at /metrics

Examples:
  pingwatch web
  pingwatch web --port 9090`,
	RunE: runWeb,
}

func init() {
	webCmd.Flags().IntVarP(&webPort, "port", "p", 0, "Web server port (default from config)")
}

func runWeb(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	tracker, err := loadTracker(ctx, db)
	if err != nil {
		return err
	}

	port := webPortOr(webPort)
	fmt.Printf("Starting web server on http://localhost:%d\n", port)
	fmt.Println("Press Ctrl+C to stop")

	return newWebServer(port, tracker, db, metrics.New()).Start(ctx)
}

// loadTracker seeds a tracker with the devices saved by the last monitor run.
func loadTracker(ctx context.Context, db *storage.DB) (*monitor.Tracker, error) {
	recs, err := storage.NewDeviceStorage(db).ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load devices: %w", err)
	}
	tracker := monitor.NewTracker()
	for _, r := range recs {
		tracker.Upsert(r.DeviceInfo, r.Status)
	}
	return tracker, nil
}
