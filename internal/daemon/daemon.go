// Package daemon runs the presence monitor as a background service.
package daemon

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/monitor"
	"github.com/user/pingwatch/internal/storage"
	"github.com/user/pingwatch/internal/util"
)

// stopTimeout bounds how long Stop waits for running jobs.
const stopTimeout = 30 * time.Second

// Daemon schedules monitor scans, retention cleanup and status updates.
type Daemon struct {
	config    *util.Config
	monitor   *monitor.Monitor
	db        *storage.DB
	offline   *storage.OfflineStorage
	scheduler *Scheduler
	pidFile   string

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	err       error
	running   bool
	startTime time.Time
	mu        sync.RWMutex
}

// New creates a daemon around an already wired monitor. db may be nil, in
// which case retention cleanup is skipped; otherwise the daemon closes it
// on Stop.
func New(cfg *util.Config, mon *monitor.Monitor, db *storage.DB) *Daemon {
	d := &Daemon{
		config:    cfg,
		monitor:   mon,
		db:        db,
		scheduler: NewScheduler(),
		pidFile:   PIDFile(cfg.DataDir),
		done:      make(chan struct{}),
	}
	if db != nil {
		d.offline = storage.NewOfflineStorage(db)
	}
	return d
}

// Scheduler exposes the job scheduler.
func (d *Daemon) Scheduler() *Scheduler { return d.scheduler }

// Start writes the pid file and starts the scheduler. The daemon runs until
// ctx is cancelled, Stop is called or a scan hits a fatal error.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.mu.Unlock()

	if err := util.EnsureDir(d.config.DataDir); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	util.Info("Daemon starting, monitoring %s", d.config.Network)

	d.registerJobs()

	go func() {
		defer close(d.done)
		d.scheduler.Run(d.ctx)
	}()

	util.Info("Daemon started with PID %d", os.Getpid())
	return nil
}

// Wait blocks until the scheduler has stopped and returns the error that
// ended the daemon, if any.
func (d *Daemon) Wait() error {
	<-d.done
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.err
}

// Stop stops the daemon gracefully and releases its files and database.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	util.Info("Daemon stopping...")

	d.cancel()

	select {
	case <-d.done:
		util.Info("Daemon stopped gracefully")
	case <-time.After(stopTimeout):
		util.Warn("Daemon stop timed out")
	}

	if err := WriteStatusFile(d.config.DataDir, d.GetStatus()); err != nil {
		util.Warn("Failed to write status file: %v", err)
	}
	d.removePIDFile()
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// fail records a fatal error and shuts the scheduler down.
func (d *Daemon) fail(err error) {
	d.mu.Lock()
	if d.err == nil {
		d.err = err
	}
	d.mu.Unlock()
	d.cancel()
}

func (d *Daemon) writePIDFile() error {
	return os.WriteFile(d.pidFile, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func (d *Daemon) removePIDFile() {
	_ = os.Remove(d.pidFile)
}

// IsRunning returns whether the daemon is running.
func (d *Daemon) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// GetStatus returns the daemon status.
func (d *Daemon) GetStatus() *model.DaemonStatus {
	d.mu.RLock()
	running, started := d.running, d.startTime
	d.mu.RUnlock()

	counts := d.monitor.Tracker().Counts()
	devices := 0
	for _, n := range counts {
		devices += n
	}

	return &model.DaemonStatus{
		Running:   running,
		PID:       os.Getpid(),
		StartTime: started,
		Uptime:    time.Since(started).Round(time.Second).String(),
		Network:   d.config.Network,
		LastScan:  d.monitor.LastScan(),
		Cycles:    d.monitor.Cycles(),
		Devices:   devices,
		Online:    counts[model.StatusNew] + counts[model.StatusOnline],
		Offline:   counts[model.StatusOffline] + counts[model.StatusLost],
		Jobs:      d.scheduler.GetJobStatuses(),
	}
}
