package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/user/pingwatch/internal/lookup"
	"github.com/user/pingwatch/internal/metrics"
	"github.com/user/pingwatch/internal/monitor"
	"github.com/user/pingwatch/internal/notify"
	"github.com/user/pingwatch/internal/probes"
	"github.com/user/pingwatch/internal/report"
	"github.com/user/pingwatch/internal/storage"
	"github.com/user/pingwatch/internal/tui"
	"github.com/user/pingwatch/internal/util"
	"github.com/user/pingwatch/internal/web"
)

var (
	monitorFormat  string
	monitorUI      bool
	monitorWeb     bool
	monitorWebPort int
)

// scanFlags are shared by monitor, ui and start.
var scanFlags = pflag.NewFlagSet("scan", pflag.ContinueOnError)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch a network for devices coming and going",
	Long: `Sweep every address of a CIDR network on an interval and report which
devices appeared, stayed or disappeared. Offline intervals are stored so
they can be reviewed with the report command.

Examples:
  pingwatch monitor -n 192.168.1.0/24
  pingwatch monitor -n 10.0.0.0/24 -i 30s --changes-only --format json
  pingwatch monitor -n 192.168.1.0/24 --ui --with-web`,
	RunE: runMonitor,
}

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Monitor a network with the terminal dashboard",
	Long: `Run the network monitor with the interactive dashboard. Same as
monitor --ui.

Keys: j/k or arrows to move, enter for device details, s to toggle the
sort order, q to quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		monitorUI = true
		return runMonitor(cmd, args)
	},
}

func init() {
	d := util.DefaultConfig()
	scanFlags.StringP("network", "n", d.Network, "network to monitor in CIDR notation")
	scanFlags.DurationP("interval", "i", d.ScanInterval, "time between scan cycles")
	scanFlags.Duration("scan-timeout", d.ScanTimeout, "per-address probe timeout")
	scanFlags.Int("concurrency", d.ScanConcurrency, "maximum probes in flight (0 = one per address)")
	scanFlags.Float64("rate", d.ScanRate, "maximum probes started per second (0 = unlimited)")
	scanFlags.BoolP("changes-only", "c", d.ChangesOnly, "do not report devices that stayed")
	scanFlags.BoolP("resolve-mac", "m", d.ResolveMAC, "look up MAC addresses and vendors")
	scanFlags.Bool("notify", d.Notify, "send a desktop notification when a device goes away")

	bindings := map[string]string{
		"network":          "network",
		"scan_interval":    "interval",
		"scan_timeout":     "scan-timeout",
		"scan_concurrency": "concurrency",
		"scan_rate":        "rate",
		"changes_only":     "changes-only",
		"resolve_mac":      "resolve-mac",
		"notify":           "notify",
	}
	for key, name := range bindings {
		viper.BindPFlag(key, scanFlags.Lookup(name))
	}

	for _, c := range []*cobra.Command{monitorCmd, uiCmd} {
		c.Flags().AddFlagSet(scanFlags)
		c.Flags().BoolVar(&monitorWeb, "with-web", false, "also serve the web dashboard and API")
		c.Flags().IntVar(&monitorWebPort, "web-port", 0, "port for --with-web (default from config)")
	}
	monitorCmd.Flags().StringVarP(&monitorFormat, "format", "o", report.FormatText, "change report format (text, json, csv)")
	monitorCmd.Flags().BoolVarP(&monitorUI, "ui", "u", false, "show the interactive dashboard")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(monitorFormat)
	if err != nil {
		return err
	}
	if monitorUI {
		// The dashboard owns the terminal.
		util.SetLogger(util.NewLogger(cfg.LogLevel, cfg.LogFile, false))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	m := metrics.New()
	tracker := monitor.NewTracker()

	var sinks []monitor.Sink
	if !monitorUI {
		sinks = append(sinks, report.NewChangePrinter(os.Stdout, format))
	}
	mon, scanner, err := newMonitor(tracker, db, m, sinks...)
	if err != nil {
		return err
	}

	if !monitorUI {
		util.Info("Monitoring %s (%d addresses) every %s", cfg.Network, scanner.Addresses(), cfg.ScanInterval)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return mon.Run(gctx) })

	if monitorUI {
		app := tui.NewApp(tracker, storage.NewOfflineStorage(db), cfg.Network)
		g.Go(func() error {
			defer cancel()
			return app.Run(gctx)
		})
	}

	if monitorWeb {
		srv := newWebServer(webPortOr(monitorWebPort), tracker, db, m)
		if !monitorUI {
			fmt.Printf("Web dashboard: http://localhost:%d\n", webPortOr(monitorWebPort))
		}
		g.Go(func() error { return srv.Start(gctx) })
	}

	return g.Wait()
}

// newMonitor wires a scanner for cfg.Network to the tracker, the database
// and the notifier.
func newMonitor(tracker *monitor.Tracker, db *storage.DB, m *metrics.Metrics, sinks ...monitor.Sink) (*monitor.Monitor, *monitor.Scanner, error) {
	if cfg.Network == "" {
		return nil, nil, fmt.Errorf("no network configured: pass --network or set network in the config file")
	}
	prefix, err := monitor.ParseNetwork(cfg.Network)
	if err != nil {
		return nil, nil, err
	}

	logger := util.Logger()
	scanner, err := monitor.NewScanner(monitor.ScannerConfig{
		Network:     prefix,
		Timeout:     cfg.ScanTimeout,
		Concurrency: cfg.ScanConcurrency,
		Rate:        cfg.ScanRate,
		ChangesOnly: cfg.ChangesOnly,
		ResolveMAC:  cfg.ResolveMAC,
	}, proberFactory(probes.DefaultOptions()), lookup.NewSystem(logger), logger)
	if err != nil {
		return nil, nil, err
	}

	opts := monitor.Options{
		Interval: cfg.ScanInterval,
		Sinks:    sinks,
		Metrics:  m,
		Logger:   logger,
	}
	if db != nil {
		opts.Offline = storage.NewOfflineStorage(db)
		opts.Devices = storage.NewDeviceStorage(db)
	}
	if cfg.Notify {
		opts.Notifier = notify.New(logger)
	}
	return monitor.New(scanner, tracker, opts), scanner, nil
}

func newWebServer(port int, tracker *monitor.Tracker, db *storage.DB, m *metrics.Metrics) *web.Server {
	return web.NewServer(web.Options{
		Port:    port,
		Network: cfg.Network,
		Tracker: tracker,
		DB:      db,
		Metrics: m,
		Logger:  util.Logger(),
	})
}

func webPortOr(port int) int {
	if port > 0 {
		return port
	}
	return cfg.WebPort
}
