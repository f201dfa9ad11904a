// Package stats aggregates probe outcomes per target.
package stats

import (
	"time"

	"github.com/user/pingwatch/internal/model"
)

// Stats is a running aggregate of one target's outcomes.
type Stats struct {
	Sent     int
	Received int
	Min      time.Duration
	Max      time.Duration
	Sum      time.Duration
	LastSeq  uint16
}

// Add folds an outcome into the aggregate.
func (s *Stats) Add(o model.Outcome) {
	s.Sent++
	s.LastSeq = o.Seq
	if !o.OK() {
		return
	}
	if s.Received == 0 || o.RTT < s.Min {
		s.Min = o.RTT
	}
	if s.Received == 0 || o.RTT > s.Max {
		s.Max = o.RTT
	}
	s.Received++
	s.Sum += o.RTT
}

// Avg is the mean round-trip time; false when nothing was received.
func (s *Stats) Avg() (time.Duration, bool) {
	if s.Received == 0 {
		return 0, false
	}
	return s.Sum / time.Duration(s.Received), true
}

// MinRTT is the fastest reply; false when nothing was received.
func (s *Stats) MinRTT() (time.Duration, bool) {
	return s.Min, s.Received > 0
}

// MaxRTT is the slowest reply; false when nothing was received.
func (s *Stats) MaxRTT() (time.Duration, bool) {
	return s.Max, s.Received > 0
}

// LossPercent is the share of unanswered probes, 0 when none were sent.
func (s *Stats) LossPercent() float64 {
	if s.Sent == 0 {
		return 0
	}
	return (1 - float64(s.Received)/float64(s.Sent)) * 100
}

// Set keeps one Stats per target in first-seen order.
type Set struct {
	order []string
	stats map[string]*Stats
	tgts  map[string]model.Target
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{stats: map[string]*Stats{}, tgts: map[string]model.Target{}}
}

// Add folds o into its target's aggregate and returns it.
func (s *Set) Add(o model.Outcome) *Stats {
	key := o.Target.String()
	st, ok := s.stats[key]
	if !ok {
		st = &Stats{}
		s.stats[key] = st
		s.tgts[key] = o.Target
		s.order = append(s.order, key)
	}
	st.Add(o)
	return st
}

// Ensure registers a target that may never produce an outcome.
func (s *Set) Ensure(t model.Target) {
	key := t.String()
	if _, ok := s.stats[key]; ok {
		return
	}
	s.stats[key] = &Stats{}
	s.tgts[key] = t
	s.order = append(s.order, key)
}

// Each visits every target in first-seen order.
func (s *Set) Each(fn func(t model.Target, st *Stats)) {
	for _, k := range s.order {
		fn(s.tgts[k], s.stats[k])
	}
}
