package probes

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/user/pingwatch/internal/model"
)

// Skipped records a target that could not be probed.
type Skipped struct {
	Target model.Target
	Err    error
}

// Runner pings several targets concurrently and funnels every outcome into
// one channel.
type Runner struct {
	factory Factory
	cfg     SessionConfig
	logger  *zap.Logger
}

// NewRunner creates a runner using factory to open probers.
func NewRunner(factory Factory, cfg SessionConfig, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{factory: factory, cfg: cfg, logger: logger}
}

// Open creates a prober for every target before any probing starts.
// ErrPermissionDenied aborts the whole run and closes what was opened; any
// other failure only skips that target.
func (r *Runner) Open(targets []model.Target) ([]Prober, []Skipped, error) {
	var (
		probers []Prober
		skipped []Skipped
	)
	for _, t := range targets {
		p, err := r.factory(t)
		if err != nil {
			if errors.Is(err, ErrPermissionDenied) {
				closeAll(probers)
				return nil, nil, err
			}
			r.logger.Warn("skipping target", zap.String("target", t.String()), zap.Error(err))
			skipped = append(skipped, Skipped{Target: t, Err: err})
			continue
		}
		probers = append(probers, p)
	}
	return probers, skipped, nil
}

// Run starts one session per prober and closes out once all have finished.
// The probers are closed when their session ends.
func (r *Runner) Run(ctx context.Context, probers []Prober, out chan<- model.Outcome) {
	var wg sync.WaitGroup
	for _, p := range probers {
		wg.Add(1)
		go func(p Prober) {
			defer wg.Done()
			defer p.Close()
			NewSession(p, r.cfg, r.logger).Run(ctx, out)
		}(p)
	}
	wg.Wait()
	close(out)
}

func closeAll(probers []Prober) {
	for _, p := range probers {
		p.Close()
	}
}
