package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/user/pingwatch/internal/probes"
	"github.com/user/pingwatch/internal/util"
)

const (
	scanJob = "scan"

	retentionInterval = time.Hour
	statusInterval    = 10 * time.Second
)

// registerJobs registers the scan, retention and status jobs.
func (d *Daemon) registerJobs() {
	d.scheduler.AddJob(&Job{
		Name:     scanJob,
		Interval: d.config.ScanInterval,
		Run:      d.runScan,
	})

	if d.offline != nil && d.config.Retention > 0 {
		d.scheduler.AddJob(&Job{
			Name:     "retention",
			Interval: retentionInterval,
			Run:      d.runRetention,
		})
	}

	d.scheduler.AddJob(&Job{
		Name:     "status",
		Interval: statusInterval,
		Run:      d.runStatus,
	})
}

// ScanNow makes the scan job due on the next scheduler tick.
func (d *Daemon) ScanNow() bool {
	return d.scheduler.TriggerJob(scanJob)
}

func (d *Daemon) runScan(ctx context.Context) error {
	err := d.monitor.RunCycle(ctx)
	if errors.Is(err, probes.ErrPermissionDenied) {
		util.Error("Scan aborted: %v", err)
		d.fail(err)
	}
	return err
}

func (d *Daemon) runRetention(ctx context.Context) error {
	cutoff := time.Now().Add(-d.config.Retention)
	n, err := d.offline.Cleanup(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		util.Info("Removed %d offline events older than %s", n, cutoff.Format("2006-01-02"))
	}
	return nil
}

func (d *Daemon) runStatus(context.Context) error {
	return WriteStatusFile(d.config.DataDir, d.GetStatus())
}
