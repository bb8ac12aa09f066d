// Package circuitbreaker provides circuit breakers: a generic wrapper over
// sony/gobreaker for single dependencies and a per-domain Registry with
// exponential open backoff and manual reset.
package circuitbreaker

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// Config configures a Breaker.
type Config struct {
	Name                string
	MaxRequests         uint32        // allowed through while half-open
	Interval            time.Duration // closed-state counter reset period, 0 keeps counts
	Timeout             time.Duration // open duration before half-open
	ConsecutiveFailures uint32
	OnStateChange       func(name string, from, to gobreaker.State)
}

// DefaultConfig returns defaults suited to a best-effort side dependency.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// Breaker guards calls returning T.
type Breaker[T any] struct {
	cb *gobreaker.CircuitBreaker[T]
}

// New creates a Breaker from cfg.
func New[T any](cfg Config) *Breaker[T] {
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 1
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: cfg.OnStateChange,
	}

	return &Breaker[T]{cb: gobreaker.NewCircuitBreaker[T](settings)}
}

// Execute runs fn unless the breaker is open.
func (b *Breaker[T]) Execute(fn func() (T, error)) (T, error) {
	return b.cb.Execute(fn)
}

// State returns the current breaker state.
func (b *Breaker[T]) State() gobreaker.State {
	return b.cb.State()
}

// Name returns the breaker name.
func (b *Breaker[T]) Name() string {
	return b.cb.Name()
}
