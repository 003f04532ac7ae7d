package sweeper

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/obsidianstack/aggregator/server/internal/metrics"
	"github.com/obsidianstack/aggregator/server/internal/snapshot"
	"github.com/obsidianstack/aggregator/server/internal/store"
)

// Default expiry age and sweep period.
const (
	DefaultThreshold = 30 * time.Second
	DefaultInterval  = 2 * time.Second
)

// Persister writes the store to durable storage.
type Persister interface {
	SaveFrom(src snapshot.Source) error
}

// Sweeper periodically removes expired records from a store.
type Sweeper struct {
	store   *store.Store
	persist Persister
	metrics *metrics.Metrics

	threshold atomic.Int64 // time.Duration
	interval  atomic.Int64 // time.Duration
	reset     chan struct{}
}

// New creates a Sweeper for st. Non-positive durations fall back to the
// defaults. persist and m may be nil.
func New(st *store.Store, persist Persister, m *metrics.Metrics, threshold, interval time.Duration) *Sweeper {
	s := &Sweeper{
		store:   st,
		persist: persist,
		metrics: m,
		reset:   make(chan struct{}, 1),
	}
	s.SetThreshold(threshold)
	s.SetInterval(interval)
	return s
}

// Threshold returns the current expiry age.
func (s *Sweeper) Threshold() time.Duration {
	return time.Duration(s.threshold.Load())
}

// Interval returns the current tick interval.
func (s *Sweeper) Interval() time.Duration {
	return time.Duration(s.interval.Load())
}

// SetThreshold changes the expiry age used by subsequent passes.
func (s *Sweeper) SetThreshold(d time.Duration) {
	if d <= 0 {
		d = DefaultThreshold
	}
	s.threshold.Store(int64(d))
}

// SetInterval changes the tick interval. A running loop picks it up
// immediately.
func (s *Sweeper) SetInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultInterval
	}
	if time.Duration(s.interval.Swap(int64(d))) == d {
		return
	}
	select {
	case s.reset <- struct{}{}:
	default:
	}
}

// Sweep evicts expired records and, if any were removed, persists the
// store. It returns the number of records evicted.
func (s *Sweeper) Sweep() int {
	n := s.store.EvictOlderThan(s.Threshold())
	if n == 0 {
		return 0
	}
	s.metrics.Evicted(n)
	slog.Debug("sweeper: evicted expired records", "count", n, "threshold", s.Threshold())

	if s.persist != nil {
		err := s.persist.SaveFrom(s.store)
		s.metrics.Saved(err)
		if err != nil {
			slog.Error("sweeper: persist after eviction failed", "err", err)
		}
	}
	return n
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.Interval())
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.reset:
			t.Reset(s.Interval())
		case <-t.C:
			s.Sweep()
		}
	}
}
