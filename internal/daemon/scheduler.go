package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/util"
)

// Job represents a scheduled job.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error

	// State
	lastRun    time.Time
	nextRun    time.Time
	lastError  error
	errorCount int
	running    bool
	mu         sync.RWMutex
}

// Scheduler runs jobs on their intervals. A failed job is retried after
// half its interval.
type Scheduler struct {
	// InitialDelay postpones the first run of every job added afterwards.
	InitialDelay time.Duration
	// Tick is how often due jobs are checked for.
	Tick time.Duration

	jobs []*Job
	wg   sync.WaitGroup
	mu   sync.RWMutex
	now  func() time.Time
}

// NewScheduler creates a new scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		InitialDelay: 5 * time.Second,
		Tick:         time.Second,
		jobs:         make([]*Job, 0),
		now:          time.Now,
	}
}

// AddJob adds a job to the scheduler.
func (s *Scheduler) AddJob(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.nextRun = s.now().Add(s.InitialDelay)
	s.jobs = append(s.jobs, job)
}

// Run checks for due jobs until ctx is cancelled, then waits for the
// running ones to return.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Tick)
	defer ticker.Stop()

	util.Info("Scheduler started with %d jobs", len(s.jobs))

	s.checkJobs(ctx, s.now())
	for {
		select {
		case <-ctx.Done():
			util.Info("Scheduler stopping")
			s.wg.Wait()
			return
		case <-ticker.C:
			s.checkJobs(ctx, s.now())
		}
	}
}

func (s *Scheduler) checkJobs(ctx context.Context, now time.Time) {
	s.mu.RLock()
	jobs := s.jobs
	s.mu.RUnlock()

	for _, job := range jobs {
		job.mu.Lock()
		due := !job.running && !now.Before(job.nextRun)
		if due {
			job.running = true
		}
		job.mu.Unlock()

		if due {
			s.wg.Add(1)
			go func(j *Job) {
				defer s.wg.Done()
				s.runJob(ctx, j)
			}(job)
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, job *Job) {
	job.mu.Lock()
	job.lastRun = s.now()
	job.mu.Unlock()

	util.Debug("Running job: %s", job.Name)

	jctx, cancel := context.WithTimeout(ctx, job.Interval)
	defer cancel()

	err := job.Run(jctx)

	job.mu.Lock()
	defer job.mu.Unlock()
	job.running = false
	if err != nil && ctx.Err() == nil {
		job.lastError = err
		job.errorCount++
		util.Warn("Job %s failed: %v", job.Name, err)
		job.nextRun = s.now().Add(job.Interval / 2)
		return
	}
	job.lastError = nil
	util.Debug("Job %s completed", job.Name)
	job.nextRun = s.now().Add(job.Interval)
}

// GetJobStatuses returns the status of all jobs.
func (s *Scheduler) GetJobStatuses() []model.JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]model.JobStatus, len(s.jobs))
	for i, job := range s.jobs {
		job.mu.RLock()
		status := model.JobStatus{
			Name:       job.Name,
			Interval:   job.Interval,
			LastRun:    job.lastRun,
			NextRun:    job.nextRun,
			ErrorCount: job.errorCount,
			Running:    job.running,
		}
		if job.lastError != nil {
			status.LastError = job.lastError.Error()
		}
		job.mu.RUnlock()
		statuses[i] = status
	}

	return statuses
}

// GetJob returns a job by name.
func (s *Scheduler) GetJob(name string) *Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, job := range s.jobs {
		if job.Name == name {
			return job
		}
	}
	return nil
}

// TriggerJob makes a job due on the next tick.
func (s *Scheduler) TriggerJob(name string) bool {
	job := s.GetJob(name)
	if job == nil {
		return false
	}

	job.mu.Lock()
	job.nextRun = s.now()
	job.mu.Unlock()

	return true
}
