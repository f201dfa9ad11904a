package probes

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/user/pingwatch/internal/model"
)

// RetryBackoff is the fixed pause between attempts for the same sequence.
const RetryBackoff = 100 * time.Millisecond

// SessionConfig is the probing policy for one target.
type SessionConfig struct {
	Count   int
	Period  time.Duration
	Timeout time.Duration
	Retry   int
}

// Session drives one prober through a series of sequence numbers.
type Session struct {
	prober  Prober
	cfg     SessionConfig
	backoff time.Duration
	logger  *zap.Logger
}

// NewSession creates a session for the prober.
func NewSession(p Prober, cfg SessionConfig, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retry < 0 {
		cfg.Retry = 0
	}
	return &Session{
		prober:  p,
		cfg:     cfg,
		backoff: RetryBackoff,
		logger:  logger.With(zap.String("target", p.Target().String())),
	}
}

// Run probes sequences 0..Count-1, making up to Retry+1 attempts each and
// stopping at the first success. Every attempt's outcome is sent on out.
// Run returns early, without error, once ctx is cancelled; a probe already
// in flight still runs to its own timeout.
func (s *Session) Run(ctx context.Context, out chan<- model.Outcome) {
	for i := 0; i < s.cfg.Count; i++ {
		seq := uint16(i)

		for attempt := 0; attempt <= s.cfg.Retry; attempt++ {
			if attempt > 0 && !sleep(ctx, s.backoff) {
				return
			}

			o := s.prober.ProbeOnce(seq, s.cfg.Timeout)
			select {
			case out <- o:
			case <-ctx.Done():
				s.logger.Debug("consumer gone, stopping session", zap.Uint16("seq", seq))
				return
			}
			if o.OK() {
				break
			}
			s.logger.Debug("probe failed", zap.Uint16("seq", seq), zap.Int("attempt", attempt+1), zap.Error(o.Err))
		}

		if i < s.cfg.Count-1 && !sleep(ctx, s.cfg.Period) {
			return
		}
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
