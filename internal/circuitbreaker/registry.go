package circuitbreaker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/satsend/internal/apperror"
	"github.com/fd1az/satsend/internal/logger"
)

// Status is the externally visible circuit position.
type Status string

const (
	StatusClosed   Status = "closed"
	StatusOpen     Status = "open"
	StatusHalfOpen Status = "half-open"
)

// State is a snapshot of one domain's circuit.
type State struct {
	Domain              string
	IsOpen              bool
	HalfOpen            bool
	ConsecutiveFailures int
	ConsecutiveOpens    int
	NextAttemptTime     time.Time
}

// Status derives the circuit position from the snapshot.
func (s State) Status() Status {
	switch {
	case s.HalfOpen:
		return StatusHalfOpen
	case s.IsOpen:
		return StatusOpen
	default:
		return StatusClosed
	}
}

// RegistryConfig tunes every circuit in a Registry.
type RegistryConfig struct {
	FailureThreshold int
	BaseBackoff      time.Duration
	MaxBackoff       time.Duration
}

// DefaultRegistryConfig opens after 3 failures, backing off 30s doubling up to 10m.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		FailureThreshold: 3,
		BaseBackoff:      30 * time.Second,
		MaxBackoff:       10 * time.Minute,
	}
}

type circuit struct {
	State
	probing bool
	probeID uint64
	backoff *backoff.ExponentialBackOff
}

// Permit is the admission BeforeCall hands out. Only the permit that won the
// half-open slot can close, reopen or free it.
type Permit struct {
	Domain  string
	IsProbe bool
	probeID uint64
}

// Registry tracks one circuit per remote domain.
type Registry struct {
	mu       sync.Mutex
	cfg      RegistryConfig
	circuits map[string]*circuit
	now      func() time.Time
	logger   logger.LoggerInterface
	probes   uint64

	transitions metric.Int64Counter
	rejections  metric.Int64Counter
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithLogger sets the logger used for state transitions.
func WithLogger(l logger.LoggerInterface) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg RegistryConfig, opts ...RegistryOption) *Registry {
	def := DefaultRegistryConfig()
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = cfg.BaseBackoff
	}

	r := &Registry{
		cfg:      cfg,
		circuits: make(map[string]*circuit),
		now:      time.Now,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	meter := otel.Meter("satsend/circuitbreaker")
	r.transitions, _ = meter.Int64Counter("circuit_transitions_total",
		metric.WithDescription("Circuit state transitions per domain"),
		metric.WithUnit("{transition}"),
	)
	r.rejections, _ = meter.Int64Counter("circuit_rejections_total",
		metric.WithDescription("Calls rejected while a circuit was open"),
		metric.WithUnit("{call}"),
	)

	return r
}

// get returns the circuit for domain. Caller holds r.mu.
func (r *Registry) get(domain string) *circuit {
	c, ok := r.circuits[domain]
	if !ok {
		eb := &backoff.ExponentialBackOff{
			InitialInterval:     r.cfg.BaseBackoff,
			RandomizationFactor: 0,
			Multiplier:          2,
			MaxInterval:         r.cfg.MaxBackoff,
			MaxElapsedTime:      0,
			Stop:                backoff.Stop,
			Clock:               backoff.SystemClock,
		}
		eb.Reset()
		c = &circuit{State: State{Domain: domain}, backoff: eb}
		r.circuits[domain] = c
	}
	return c
}

// BeforeCall admits or rejects a call to domain. Once the open backoff has
// elapsed exactly one probe is admitted; everyone else is rejected until that
// probe reports through OnResult or gives its slot back through Abandon.
func (r *Registry) BeforeCall(domain string) (Permit, error) {
	r.mu.Lock()
	c := r.get(domain)

	if !c.IsOpen {
		r.mu.Unlock()
		return Permit{Domain: domain}, nil
	}

	now := r.now()
	if !c.probing && !now.Before(c.NextAttemptTime) {
		r.probes++
		c.probing = true
		c.probeID = r.probes
		c.HalfOpen = true
		permit := Permit{Domain: domain, IsProbe: true, probeID: c.probeID}
		r.mu.Unlock()
		r.transition(domain, StatusOpen, StatusHalfOpen)
		return permit, nil
	}

	next := c.NextAttemptTime
	r.mu.Unlock()

	r.rejections.Add(context.Background(), 1, metric.WithAttributes(attribute.String("domain", domain)))
	detail := "probe in flight"
	if now.Before(next) {
		detail = "retry after " + next.Format(time.RFC3339)
	}
	return Permit{}, apperror.New(apperror.CodeCircuitOpen,
		apperror.WithDomain(domain),
		apperror.WithContext(detail),
	)
}

// owns reports whether p is the probe currently holding c's half-open slot.
// Caller holds r.mu.
func (c *circuit) owns(p Permit) bool {
	return p.IsProbe && c.probing && c.probeID == p.probeID
}

// OnResult records the outcome of a call admitted by BeforeCall.
func (r *Registry) OnResult(p Permit, success bool) {
	r.mu.Lock()
	c := r.get(p.Domain)

	var from, to Status
	switch {
	case c.owns(p) && success:
		from, to = StatusHalfOpen, StatusClosed
		r.close(c)

	case c.owns(p):
		from, to = StatusHalfOpen, StatusOpen
		c.probing = false
		c.HalfOpen = false
		c.ConsecutiveFailures++
		r.open(c)

	case p.IsProbe || c.IsOpen:
		// stale probe, or a late result from a call admitted before the circuit opened

	case success:
		c.ConsecutiveFailures = 0

	default:
		c.ConsecutiveFailures++
		if c.ConsecutiveFailures >= r.cfg.FailureThreshold {
			from, to = StatusClosed, StatusOpen
			r.open(c)
		}
	}
	failures := c.ConsecutiveFailures
	next := c.NextAttemptTime
	r.mu.Unlock()

	if to != "" {
		r.transition(p.Domain, from, to, "failures", failures, "next_attempt", next)
	}
}

// Abandon reports that an admitted call ended without reaching the domain,
// e.g. it was cancelled locally. A probe permit hands its slot back so the
// next caller can probe; any other permit is a no-op.
func (r *Registry) Abandon(p Permit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.get(p.Domain)
	if c.owns(p) {
		c.HalfOpen = false
		c.probing = false
	}
}

// Reset force-closes the circuit for domain.
func (r *Registry) Reset(domain string) {
	r.mu.Lock()
	c := r.get(domain)
	from := c.Status()
	r.close(c)
	r.mu.Unlock()

	if from != StatusClosed {
		r.transition(domain, from, StatusClosed, "manual", true)
	}
}

// State returns the snapshot for one domain.
func (r *Registry) State(domain string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.circuits[domain]; ok {
		return c.State
	}
	return State{Domain: domain}
}

// Snapshot returns every known circuit ordered by domain.
func (r *Registry) Snapshot() []State {
	r.mu.Lock()
	out := make([]State, 0, len(r.circuits))
	for _, c := range r.circuits {
		out = append(out, c.State)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}

// open moves c to open with the next backoff step. Caller holds r.mu.
func (r *Registry) open(c *circuit) {
	if c.ConsecutiveOpens == 0 {
		c.backoff.Reset()
	}
	c.IsOpen = true
	c.ConsecutiveOpens++
	c.NextAttemptTime = r.now().Add(c.backoff.NextBackOff())
}

// close resets c to closed. Caller holds r.mu.
func (r *Registry) close(c *circuit) {
	c.IsOpen = false
	c.HalfOpen = false
	c.probing = false
	c.ConsecutiveFailures = 0
	c.ConsecutiveOpens = 0
	c.NextAttemptTime = time.Time{}
	c.backoff.Reset()
}

func (r *Registry) transition(domain string, from, to Status, args ...any) {
	ctx := context.Background()
	r.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("domain", domain),
		attribute.String("to", string(to)),
	))

	fields := append([]any{"domain", domain, "from", from, "to", to}, args...)
	if to == StatusOpen {
		r.logger.Warnc(ctx, 4, "circuit state change", fields...)
		return
	}
	r.logger.Infoc(ctx, 4, "circuit state change", fields...)
}
