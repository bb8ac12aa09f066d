// Package health provides HTTP health check endpoints.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/fd1az/satsend/internal/circuitbreaker"
	"github.com/fd1az/satsend/internal/logger"
	"github.com/fd1az/satsend/internal/ratelimit"
	"github.com/fd1az/satsend/internal/resilient"
)

// Status represents the health check response.
type Status struct {
	Status    string           `json:"status"`
	Checks    map[string]Check `json:"checks"`
	Domains   []Domain         `json:"domains,omitempty"`
	Version   string           `json:"version,omitempty"`
	Timestamp string           `json:"timestamp"`
}

// Check represents an individual health check.
type Check struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// Domain is the resilience state of one remote domain.
type Domain struct {
	Domain              string                `json:"domain"`
	Circuit             circuitbreaker.Status `json:"circuit"`
	ConsecutiveFailures int                   `json:"consecutive_failures"`
	NextAttempt         string                `json:"next_attempt,omitempty"`
	Pending             int                   `json:"pending"`
	InFlight            int                   `json:"in_flight"`
	Decisions           ratelimit.Counters    `json:"decisions,omitempty"`
}

// CheckFunc is a function that performs a health check.
type CheckFunc func(ctx context.Context) (bool, string)

// StatusSource reports per-domain limiter and circuit state.
type StatusSource interface {
	Statuses() []resilient.Status
}

// Server provides health check HTTP endpoints.
type Server struct {
	port    int
	version string
	source  StatusSource
	counts  ratelimit.StatsReader
	logger  logger.LoggerInterface
	checks  map[string]CheckFunc
	mu      sync.RWMutex
	server  *http.Server
}

// NewServer creates a new health check server. source may be nil.
func NewServer(port int, version string, source StatusSource, log logger.LoggerInterface) *Server {
	return &Server{
		port:    port,
		version: version,
		source:  source,
		logger:  log,
		checks:  make(map[string]CheckFunc),
	}
}

// RegisterCheck registers a health check function.
func (s *Server) RegisterCheck(name string, check CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// SetStats adds the limiter's admitted/queued/rejected totals to every domain
// reported by /health.
func (s *Server) SetStats(r ratelimit.StatsReader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = r
}

// Handler returns the health routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/live", s.handleLive)
	return mux
}

// Start starts the health check server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn(context.Background(), "health server stopped", "port", s.port, "error", err)
		}
	}()

	return nil
}

// Stop gracefully stops the health check server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) runChecks(ctx context.Context) (map[string]Check, bool) {
	s.mu.RLock()
	checks := make(map[string]CheckFunc, len(s.checks))
	for k, v := range s.checks {
		checks[k] = v
	}
	s.mu.RUnlock()

	out := make(map[string]Check, len(checks))
	allHealthy := true
	for name, check := range checks {
		healthy, msg := check(ctx)
		out[name] = Check{Healthy: healthy, Message: msg}
		if !healthy {
			allHealthy = false
		}
	}
	return out, allHealthy
}

func (s *Server) domains(ctx context.Context) []Domain {
	if s.source == nil {
		return nil
	}

	s.mu.RLock()
	counts := s.counts
	s.mu.RUnlock()

	statuses := s.source.Statuses()
	out := make([]Domain, 0, len(statuses))
	for _, st := range statuses {
		d := Domain{
			Domain:              st.Domain,
			Circuit:             st.Circuit.Status(),
			ConsecutiveFailures: st.Circuit.ConsecutiveFailures,
			Pending:             st.Limiter.Pending,
			InFlight:            st.Limiter.InFlight,
		}
		if st.Circuit.IsOpen {
			d.NextAttempt = st.Circuit.NextAttemptTime.UTC().Format(time.RFC3339)
		}
		if counts != nil {
			// an unreachable stats sink already fails its own check
			if c, err := counts.Counts(ctx, st.Domain); err == nil && len(c) > 0 {
				d.Decisions = c
			}
		}
		out = append(out, d)
	}
	return out
}

// reachable reports whether at least one known domain accepts calls.
func reachable(domains []Domain) bool {
	if len(domains) == 0 {
		return true
	}
	for _, d := range domains {
		if d.Circuit != circuitbreaker.StatusOpen {
			return true
		}
	}
	return false
}

// handleHealth returns full health status with all checks. Any open
// circuit makes the service degraded.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks, healthy := s.runChecks(ctx)
	status := Status{
		Status:    "ok",
		Checks:    checks,
		Domains:   s.domains(ctx),
		Version:   s.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	for _, d := range status.Domains {
		if d.Circuit == circuitbreaker.StatusOpen {
			healthy = false
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		status.Status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(status)
}

// handleReady fails when a check fails or every known domain is open.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, healthy := s.runChecks(ctx); !healthy || !reachable(s.domains(ctx)) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready"))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

// handleLive returns whether the service is alive (simple liveness probe).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("alive"))
}
