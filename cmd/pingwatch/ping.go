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

	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/probes"
	"github.com/user/pingwatch/internal/report"
	"github.com/user/pingwatch/internal/stats"
	"github.com/user/pingwatch/internal/util"
)

var (
	hostsFile     string
	pingQuiet     bool
	pingTimestamp bool
	summaryFormat string
)

// probeFlags are shared by ping and summary so each config key is bound
// to a single flag.
var probeFlags = pflag.NewFlagSet("probe", pflag.ContinueOnError)

var pingCmd = &cobra.Command{
	Use:   "ping [HOST...]",
	Short: "Ping one or more hosts",
	Long: `Send ICMP Echo requests to every host concurrently and print one line
per reply, followed by loss and round-trip statistics.

Examples:
  pingwatch ping 1.1.1.1 example.com
  pingwatch ping -c 10 -p 200ms -T 192.168.1.1
  pingwatch ping -f hosts.txt -q`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProbe(cmd.Context(), args, pingQuiet, true, report.FormatText)
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary [HOST...]",
	Short: "Ping hosts and print only the statistics",
	Long: `Ping every host like the ping command but print only the per-host
summary, as text, JSON or CSV.

Examples:
  pingwatch summary -f hosts.txt --format csv > latency.csv
  pingwatch summary -c 5 --format json 8.8.8.8 9.9.9.9`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := report.ParseFormat(summaryFormat)
		if err != nil {
			return err
		}
		return runProbe(cmd.Context(), args, true, false, format)
	},
}

func init() {
	d := util.DefaultConfig()
	probeFlags.StringVarP(&hostsFile, "file", "f", "", "read targets from a file, one per line")
	probeFlags.IntP("count", "c", d.Count, "echo requests per host")
	probeFlags.DurationP("period", "p", d.Period, "time between requests to the same host")
	probeFlags.DurationP("timeout", "w", d.Timeout, "time to wait for each reply")
	probeFlags.IntP("retry", "r", d.Retry, "extra attempts for a request that failed")
	probeFlags.IntP("size", "s", d.Size, "ICMP message size in bytes, header included")
	probeFlags.IntP("ttl", "t", d.TTL, "IP time to live")

	for _, key := range []string{"count", "period", "timeout", "retry", "size", "ttl"} {
		viper.BindPFlag(key, probeFlags.Lookup(key))
	}

	pingCmd.Flags().AddFlagSet(probeFlags)
	pingCmd.Flags().BoolVarP(&pingQuiet, "quiet", "q", false, "only print the summary")
	pingCmd.Flags().BoolVarP(&pingTimestamp, "timestamp", "T", false, "prefix reply lines with the time")

	summaryCmd.Flags().AddFlagSet(probeFlags)
	summaryCmd.Flags().StringVarP(&summaryFormat, "format", "o", report.FormatText, "output format (text, json, csv)")
}

func runProbe(ctx context.Context, args []string, quiet, banner bool, format string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hosts, err := collectHosts(args)
	if err != nil {
		return err
	}

	logger := util.Logger()
	var targets []model.Target
	for _, h := range hosts {
		t, err := probes.ResolveHost(ctx, nil, h)
		if err != nil {
			util.Warn("Skipping %s: %v", h, err)
			continue
		}
		targets = append(targets, t)
	}
	if len(targets) == 0 {
		return fmt.Errorf("no resolvable targets")
	}

	opts := probes.Options{Size: cfg.Size, TTL: cfg.TTL}
	runner := probes.NewRunner(proberFactory(opts), probes.SessionConfig{
		Count:   cfg.Count,
		Period:  cfg.Period,
		Timeout: cfg.Timeout,
		Retry:   cfg.Retry,
	}, logger)

	probers, _, err := runner.Open(targets)
	if err != nil {
		return fmt.Errorf("failed to open ICMP socket: %w", err)
	}

	printer := report.NewPrinter(os.Stdout)
	printer.Quiet = quiet
	printer.Timestamps = pingTimestamp

	set := stats.NewSet()
	for _, p := range probers {
		set.Ensure(p.Target())
		if banner && !quiet {
			printer.Start(p.Target(), cfg.Size)
		}
	}

	out := make(chan model.Outcome)
	go runner.Run(ctx, probers, out)
	for o := range out {
		set.Add(o)
		printer.Outcome(o)
	}

	if format == report.FormatText && !quiet {
		fmt.Println()
	}
	return report.WriteSummaries(os.Stdout, format, set)
}

func collectHosts(args []string) ([]string, error) {
	hosts := append([]string(nil), args...)
	if hostsFile != "" {
		fromFile, err := probes.LoadHostsFile(hostsFile)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, fromFile...)
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("no hosts given: pass them as arguments or with --file")
	}
	return hosts, nil
}

func proberFactory(opts probes.Options) probes.Factory {
	if cfg.Unprivileged {
		return probes.UnprivilegedFactory(opts, util.Logger())
	}
	return probes.RawFactory(opts, util.Logger())
}
