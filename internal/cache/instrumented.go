package cache

import (
	"context"
	"sync/atomic"
	"time"
)

type opMetrics struct {
	count     atomic.Uint64
	errors    atomic.Uint64
	latencyNs atomic.Uint64
}

func (m *opMetrics) record(start time.Time, err error) {
	m.count.Add(1)
	m.latencyNs.Add(uint64(time.Since(start).Nanoseconds()))
	if err != nil {
		m.errors.Add(1)
	}
}

func (m *opMetrics) snapshot() OpSnapshot {
	count := m.count.Load()
	var avg time.Duration
	if count > 0 {
		avg = time.Duration(m.latencyNs.Load() / count)
	}
	return OpSnapshot{Count: count, Errors: m.errors.Load(), AvgLatency: avg}
}

// Instrumented wraps any Store with operation counters and latency totals.
type Instrumented struct {
	store  Store
	get    opMetrics
	set    opMetrics
	delete opMetrics
	hits   atomic.Uint64
	misses atomic.Uint64
}

var _ Store = (*Instrumented)(nil)

func NewInstrumented(s Store) *Instrumented {
	return &Instrumented{store: s}
}

func (s *Instrumented) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	start := time.Now()
	v, ok, err := s.store.Get(ctx, key)
	s.get.record(start, err)
	if err == nil {
		if ok {
			s.hits.Add(1)
		} else {
			s.misses.Add(1)
		}
	}
	return v, ok, err
}

func (s *Instrumented) Set(ctx context.Context, key, value []byte) error {
	start := time.Now()
	err := s.store.Set(ctx, key, value)
	s.set.record(start, err)
	return err
}

func (s *Instrumented) Delete(ctx context.Context, key []byte) error {
	start := time.Now()
	err := s.store.Delete(ctx, key)
	s.delete.record(start, err)
	return err
}

// Unwrap returns the wrapped store.
func (s *Instrumented) Unwrap() Store { return s.store }

// Close closes the wrapped store when it owns resources.
func (s *Instrumented) Close() error {
	if c, ok := s.store.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

type OpSnapshot struct {
	Count      uint64        `json:"count"`
	Errors     uint64        `json:"errors"`
	AvgLatency time.Duration `json:"avg_latency_ns"`
}

// MetricsSnapshot is a point-in-time view of the counters.
type MetricsSnapshot struct {
	Get    OpSnapshot `json:"get"`
	Set    OpSnapshot `json:"set"`
	Delete OpSnapshot `json:"delete"`
	Hits   uint64     `json:"hits"`
	Misses uint64     `json:"misses"`
}

func (s *Instrumented) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		Get:    s.get.snapshot(),
		Set:    s.set.snapshot(),
		Delete: s.delete.snapshot(),
		Hits:   s.hits.Load(),
		Misses: s.misses.Load(),
	}
}
