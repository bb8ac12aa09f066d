// Package ratelimit provides per-domain token buckets with a bounded FIFO
// wait queue, built on golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/fd1az/satsend/internal/apperror"
	"github.com/fd1az/satsend/internal/logger"
)

// Status is a read-only snapshot of one domain's limiter.
type Status struct {
	Domain   string
	Tokens   float64
	Pending  int
	InFlight int
	Config   DomainConfig
}

type domainState struct {
	cfg      DomainConfig
	limiter  *rate.Limiter
	pending  int
	inFlight int
}

// Registry owns one limiter per remote domain.
type Registry struct {
	mu      sync.Mutex
	configs map[string]DomainConfig
	domains map[string]*domainState
	now     func() time.Time
	after   func(time.Duration) (<-chan time.Time, func() bool)
	stats   StatsRecorder
	logger  logger.LoggerInterface

	rejected metric.Int64Counter
	waitTime metric.Float64Histogram
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source used for reservations.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithStats records every admission decision.
func WithStats(s StatsRecorder) Option {
	return func(r *Registry) { r.stats = s }
}

// WithLogger sets the logger.
func WithLogger(l logger.LoggerInterface) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates a Registry over configs, which must contain DefaultDomain.
func NewRegistry(configs map[string]DomainConfig, opts ...Option) (*Registry, error) {
	if _, ok := configs[DefaultDomain]; !ok {
		return nil, errors.New("ratelimit: missing default domain config")
	}

	r := &Registry{
		configs: configs,
		domains: make(map[string]*domainState),
		now:     time.Now,
		after:   newTimer,
		stats:   noopStats{},
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	meter := otel.Meter("satsend/ratelimit")
	r.rejected, _ = meter.Int64Counter("ratelimit_rejected_total",
		metric.WithDescription("Requests rejected because the domain queue was full"),
		metric.WithUnit("{request}"),
	)
	r.waitTime, _ = meter.Float64Histogram("ratelimit_wait_ms",
		metric.WithDescription("Time spent queued for a token"),
		metric.WithUnit("ms"),
	)

	return r, nil
}

// NewProfileRegistry creates a Registry for a named profile.
func NewProfileRegistry(p Profile, opts ...Option) (*Registry, error) {
	configs, err := Configs(p)
	if err != nil {
		return nil, err
	}
	return NewRegistry(configs, opts...)
}

// state returns the limiter for domain. Caller holds r.mu.
func (r *Registry) state(domain string) *domainState {
	st, ok := r.domains[domain]
	if ok {
		return st
	}

	cfg, ok := r.configs[domain]
	if !ok {
		cfg = r.configs[DefaultDomain]
	}
	cfg.Domain = domain

	st = &domainState{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstLimit),
	}
	r.domains[domain] = st
	return st
}

// Ticket marks an admitted request. Release it when the request completes.
type Ticket struct {
	once    sync.Once
	release func()
	Domain  string
	Waited  time.Duration
}

// Release ends the in-flight mark. Safe to call more than once.
func (t *Ticket) Release() {
	if t == nil {
		return
	}
	t.once.Do(t.release)
}

// Acquire admits a request to domain, waiting in FIFO order for a token when
// none is available. It fails with QueueFull when QueueLimit callers are
// already waiting, and with the context error when ctx ends first, in which
// case the reserved token is returned to the bucket.
func (r *Registry) Acquire(ctx context.Context, domain string) (*Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, cancelled(domain, err)
	}

	r.mu.Lock()
	st := r.state(domain)
	now := r.now()
	res := st.limiter.ReserveN(now, 1)
	if !res.OK() {
		r.mu.Unlock()
		return nil, r.reject(ctx, domain, "burst limit is zero")
	}

	delay := res.DelayFrom(now)
	if delay <= 0 {
		st.inFlight++
		r.mu.Unlock()
		r.stats.Record(ctx, domain, DecisionAdmitted)
		return r.ticket(domain, 0), nil
	}

	if st.pending >= st.cfg.QueueLimit {
		res.CancelAt(now)
		r.mu.Unlock()
		return nil, r.reject(ctx, domain, "queue limit reached")
	}
	st.pending++
	r.mu.Unlock()

	r.stats.Record(ctx, domain, DecisionQueued)

	fired, stop := r.after(delay)
	defer stop()

	select {
	case <-fired:
		r.mu.Lock()
		st.pending--
		st.inFlight++
		r.mu.Unlock()

		r.waitTime.Record(ctx, float64(delay.Milliseconds()), metric.WithAttributes(attribute.String("domain", domain)))
		return r.ticket(domain, delay), nil

	case <-ctx.Done():
		r.mu.Lock()
		st.pending--
		res.CancelAt(r.now())
		r.mu.Unlock()

		r.stats.Record(context.WithoutCancel(ctx), domain, DecisionCancelled)
		return nil, cancelled(domain, ctx.Err())
	}
}

func newTimer(d time.Duration) (<-chan time.Time, func() bool) {
	t := time.NewTimer(d)
	return t.C, t.Stop
}

func (r *Registry) ticket(domain string, waited time.Duration) *Ticket {
	return &Ticket{
		Domain: domain,
		Waited: waited,
		release: func() {
			r.mu.Lock()
			if st, ok := r.domains[domain]; ok && st.inFlight > 0 {
				st.inFlight--
			}
			r.mu.Unlock()
		},
	}
}

func (r *Registry) reject(ctx context.Context, domain, reason string) error {
	r.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("domain", domain)))
	r.stats.Record(ctx, domain, DecisionRejected)
	r.logger.Debug(ctx, "rate limit rejected request", "domain", domain, "reason", reason)
	return apperror.New(apperror.CodeQueueFull,
		apperror.WithDomain(domain),
		apperror.WithContext(reason),
	)
}

func cancelled(domain string, err error) error {
	return apperror.New(apperror.CodeCancelled,
		apperror.WithDomain(domain),
		apperror.WithCause(err),
		apperror.WithContext("cancelled while waiting for rate limit"),
	)
}

// Status returns a snapshot for domain without consuming tokens.
func (r *Registry) Status(domain string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.domains[domain]
	if !ok {
		cfg, ok := r.configs[domain]
		if !ok {
			cfg = r.configs[DefaultDomain]
		}
		cfg.Domain = domain
		return Status{Domain: domain, Tokens: float64(cfg.BurstLimit), Config: cfg}
	}

	return Status{
		Domain:   domain,
		Tokens:   st.limiter.TokensAt(r.now()),
		Pending:  st.pending,
		InFlight: st.inFlight,
		Config:   st.cfg,
	}
}

// Domains returns the domains that have seen traffic.
func (r *Registry) Domains() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.domains))
	for d := range r.domains {
		out = append(out, d)
	}
	return out
}
