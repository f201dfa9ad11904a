package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/report"
	"github.com/user/pingwatch/internal/storage"
	"github.com/user/pingwatch/internal/util"
)

var (
	reportLast   string
	reportIP     string
	reportFormat string
	reportOutput string
	reportAll    bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate an offline report",
	Long: `Generate a report of the offline intervals recorded by the monitor,
with a Mermaid timeline of every outage.

Examples:
  pingwatch report --last 24h
  pingwatch report --last 7d --ip 192.168.1.20 -o -
  pingwatch report --last 30d --format json -o events.json
  pingwatch report --all -o backup.json`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportLast, "last", "24h",
		"Time range (e.g., 1h, 24h, 7d, 2w)")
	reportCmd.Flags().StringVar(&reportIP, "ip", "",
		"Only report this address")
	reportCmd.Flags().StringVar(&reportFormat, "format", "markdown",
		"Output format (markdown, json)")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "",
		"Output file path, - for stdout (default: auto-generated)")
	reportCmd.Flags().BoolVar(&reportAll, "all", false,
		"Export every stored offline event as JSON, ignoring --last and --ip")
}

func runReport(cmd *cobra.Command, args []string) error {
	if reportFormat != "markdown" && reportFormat != "json" {
		return fmt.Errorf("unknown format %q (want markdown or json)", reportFormat)
	}

	if reportAll {
		return exportAll(cmd.Context())
	}

	duration, err := util.ParseDuration(reportLast)
	if err != nil {
		return fmt.Errorf("invalid time range: %w", err)
	}

	until := time.Now()
	since := until.Add(-duration)

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	gen := report.NewGenerator(db)
	data, err := gen.Generate(cmd.Context(), model.ReportOptions{
		Since:  since,
		Until:  until,
		Format: reportFormat,
		IP:     reportIP,
	})
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if reportFormat == "json" {
		return writeJSONReport(data)
	}

	switch reportOutput {
	case "":
		path, err := report.WriteMarkdownFile(data, cfg.ReportOutputDir)
		if err != nil {
			return err
		}
		fmt.Printf("Report saved to: %s\n", path)
	case "-":
		fmt.Println(report.FormatMarkdown(data))
		return nil
	default:
		if err := os.WriteFile(reportOutput, []byte(report.FormatMarkdown(data)), 0644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Printf("Report saved to: %s\n", reportOutput)
	}

	fmt.Println()
	fmt.Printf("Report for %s to %s:\n",
		since.Format("2006-01-02 15:04"),
		until.Format("2006-01-02 15:04"))
	fmt.Printf("  Offline events: %d\n", len(data.Events))
	fmt.Printf("  Devices affected: %d\n", len(data.Devices))
	fmt.Printf("  Total downtime: %s\n", data.TotalDowntime.Round(time.Second))
	fmt.Printf("  Flapping devices: %d\n", len(data.Flapping))

	return nil
}

func writeJSONReport(data *report.ReportData) error {
	out := os.Stdout
	if reportOutput != "" && reportOutput != "-" {
		f, err := os.Create(reportOutput)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		out = f
	}

	payload := struct {
		GeneratedAt     time.Time                  `json:"generated_at"`
		Since           time.Time                  `json:"since"`
		Until           time.Time                  `json:"until"`
		IP              string                     `json:"ip,omitempty"`
		TotalDowntimeMs int64                      `json:"total_downtime_ms"`
		Devices         []model.DeviceOfflineStats `json:"devices"`
		Flapping        []model.DeviceOfflineStats `json:"flapping"`
		Events          []model.OfflineRecord      `json:"events"`
	}{
		GeneratedAt:     data.GeneratedAt,
		Since:           data.Since,
		Until:           data.Until,
		IP:              data.IP,
		TotalDowntimeMs: data.TotalDowntime.Milliseconds(),
		Devices:         data.Devices,
		Flapping:        data.Flapping,
		Events:          data.Events,
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if out != os.Stdout {
		fmt.Fprintf(os.Stderr, "Report saved to: %s\n", reportOutput)
	}
	return nil
}

func exportAll(ctx context.Context) error {
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	out := os.Stdout
	if reportOutput != "" && reportOutput != "-" {
		f, err := os.Create(reportOutput)
		if err != nil {
			return fmt.Errorf("failed to create export file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := storage.NewOfflineStorage(db).ExportJSON(ctx, out); err != nil {
		return fmt.Errorf("failed to export events: %w", err)
	}
	if out != os.Stdout {
		fmt.Fprintf(os.Stderr, "Events exported to: %s\n", reportOutput)
	}
	return nil
}
