package ratelimit

import (
	"context"
	"sync"
)

// Decision is the outcome of one Acquire call.
type Decision string

const (
	DecisionAdmitted  Decision = "admitted"
	DecisionQueued    Decision = "queued"
	DecisionRejected  Decision = "rejected"
	DecisionCancelled Decision = "cancelled"
)

// StatsRecorder receives limiter decisions. Recording is best-effort and
// must not block the caller for long.
type StatsRecorder interface {
	Record(ctx context.Context, domain string, d Decision)
}

// StatsReader reads decision totals back per domain.
type StatsReader interface {
	Counts(ctx context.Context, domain string) (Counters, error)
}

// Stats is a sink that can also report what it recorded.
type Stats interface {
	StatsRecorder
	StatsReader
}

type noopStats struct{}

func (noopStats) Record(context.Context, string, Decision) {}

// Counters holds decision totals for one domain.
type Counters map[Decision]int64

// MemoryStats keeps decision counters in process.
type MemoryStats struct {
	mu       sync.Mutex
	byDomain map[string]Counters
}

var _ Stats = (*MemoryStats)(nil)

// NewMemoryStats creates an empty MemoryStats.
func NewMemoryStats() *MemoryStats {
	return &MemoryStats{byDomain: make(map[string]Counters)}
}

// Record implements StatsRecorder.
func (s *MemoryStats) Record(_ context.Context, domain string, d Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byDomain[domain]
	if !ok {
		c = make(Counters)
		s.byDomain[domain] = c
	}
	c[d]++
}

// Counts returns a copy of the counters for domain.
func (s *MemoryStats) Counts(_ context.Context, domain string) (Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(Counters, len(s.byDomain[domain]))
	for k, v := range s.byDomain[domain] {
		out[k] = v
	}
	return out, nil
}
