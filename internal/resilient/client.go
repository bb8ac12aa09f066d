// Package resilient runs remote calls through a domain's circuit breaker and
// rate limiter, with per-attempt timeouts and bounded retries.
package resilient

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/satsend/internal/apperror"
	"github.com/fd1az/satsend/internal/circuitbreaker"
	"github.com/fd1az/satsend/internal/logger"
	"github.com/fd1az/satsend/internal/ratelimit"
)

// Config bounds retries and attempt duration.
type Config struct {
	MaxAttempts     int
	AttemptTimeout  time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultConfig returns 3 attempts of at most 15s each.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		AttemptTimeout:  15 * time.Second,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// Client gates calls to remote domains.
type Client struct {
	cfg     Config
	limiter *ratelimit.Registry
	breaker *circuitbreaker.Registry
	logger  logger.LoggerInterface
	tracer  trace.Tracer

	retries  metric.Int64Counter
	failures metric.Int64Counter
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l logger.LoggerInterface) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client over the given registries.
func New(limiter *ratelimit.Registry, breaker *circuitbreaker.Registry, cfg Config, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		cfg.MaxInterval = cfg.InitialInterval
	}

	c := &Client{
		cfg:     cfg,
		limiter: limiter,
		breaker: breaker,
		logger:  logger.Nop(),
		tracer:  otel.Tracer("satsend/resilient"),
	}
	for _, opt := range opts {
		opt(c)
	}

	meter := otel.Meter("satsend/resilient")
	c.retries, _ = meter.Int64Counter("resilient_retries_total",
		metric.WithDescription("Retried attempts per domain"),
		metric.WithUnit("{attempt}"),
	)
	c.failures, _ = meter.Int64Counter("resilient_failures_total",
		metric.WithDescription("Logical requests that failed after retries"),
		metric.WithUnit("{request}"),
	)

	return c
}

// Do runs fn against domain, discarding any result.
func (c *Client) Do(ctx context.Context, domain string, fn func(ctx context.Context) error) error {
	_, err := Execute(ctx, c, domain, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Execute runs fn against domain. The circuit is consulted once, each attempt
// waits for a rate limit token and runs under its own timeout, transient
// failures are retried with exponential backoff, and the breaker hears about
// the logical request exactly once.
func Execute[T any](ctx context.Context, c *Client, domain string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	ctx, span := c.tracer.Start(ctx, "resilient.execute",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("domain", domain)),
	)
	defer span.End()

	permit, err := c.breaker.BeforeCall(domain)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "circuit open")
		return zero, err
	}

	exp := &backoff.ExponentialBackOff{
		InitialInterval:     c.cfg.InitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         c.cfg.MaxInterval,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	exp.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.cfg.MaxAttempts-1)), ctx)

	attempts := 0
	operation := func() (T, error) {
		attempts++

		ticket, err := c.limiter.Acquire(ctx, domain)
		if err != nil {
			return zero, backoff.Permanent(err)
		}
		defer ticket.Release()

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
		defer cancel()

		v, err := fn(attemptCtx)
		if err == nil {
			return v, nil
		}

		err = classify(domain, err)
		if ctx.Err() != nil || !apperror.IsRetryable(err) {
			return zero, backoff.Permanent(err)
		}
		return zero, err
	}

	notify := func(err error, next time.Duration) {
		c.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("domain", domain)))
		c.logger.Warn(ctx, "request failed, retrying",
			"domain", domain, "attempt", attempts, "next_try", next.String(), "error", err)
	}

	v, err := backoff.RetryNotifyWithData(operation, policy, notify)
	span.SetAttributes(attribute.Int("attempts", attempts))

	switch {
	case err == nil:
		c.breaker.OnResult(permit, true)
		span.SetStatus(codes.Ok, "")
		return v, nil

	case ctx.Err() != nil || isLocal(err):
		c.breaker.Abandon(permit)
		if !apperror.IsAppError(err) {
			err = apperror.New(apperror.CodeCancelled, apperror.WithDomain(domain), apperror.WithCause(err))
		}

	case countsAsFailure(err):
		c.breaker.OnResult(permit, false)
		c.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("domain", domain)))

	default:
		// the domain answered; the request itself was bad
		c.breaker.OnResult(permit, true)
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return zero, err
}

// classify wraps raw transport errors into AppErrors tagged with domain.
func classify(domain string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		if appErr.Domain == "" {
			appErr.Domain = domain
		}
		return err
	}

	switch apperror.KindOf(err) {
	case apperror.KindNetworkTimeout:
		return apperror.New(apperror.CodeNetworkTimeout, apperror.WithDomain(domain), apperror.WithCause(err))
	case apperror.KindNetworkUnreachable:
		return apperror.New(apperror.CodeNetworkUnreachable, apperror.WithDomain(domain), apperror.WithCause(err))
	default:
		return apperror.New(apperror.CodeExternalServiceError, apperror.WithDomain(domain), apperror.WithCause(err))
	}
}

// isLocal reports failures that never reached the domain.
func isLocal(err error) bool {
	return errors.Is(err, context.Canceled) ||
		apperror.HasCode(err, apperror.CodeCancelled) ||
		apperror.HasCode(err, apperror.CodeQueueFull)
}

func countsAsFailure(err error) bool {
	return apperror.IsRetryable(err) ||
		errors.Is(err, context.DeadlineExceeded) ||
		apperror.HasCode(err, apperror.CodeMalformedResponse) ||
		apperror.HasCode(err, apperror.CodeExternalServiceError)
}

// Status merges limiter and breaker snapshots for one domain.
type Status struct {
	Domain  string
	Limiter ratelimit.Status
	Circuit circuitbreaker.State
}

// Status returns the current state of domain without mutating it.
func (c *Client) Status(domain string) Status {
	return Status{
		Domain:  domain,
		Limiter: c.limiter.Status(domain),
		Circuit: c.breaker.State(domain),
	}
}

// Statuses returns the state of every domain seen so far.
func (c *Client) Statuses() []Status {
	seen := make(map[string]struct{})
	for _, d := range c.limiter.Domains() {
		seen[d] = struct{}{}
	}
	for _, s := range c.breaker.Snapshot() {
		seen[s.Domain] = struct{}{}
	}

	domains := make([]string, 0, len(seen))
	for d := range seen {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	out := make([]Status, 0, len(domains))
	for _, d := range domains {
		out = append(out, c.Status(d))
	}
	return out
}

// ResetCircuit force-closes the circuit for domain.
func (c *Client) ResetCircuit(domain string) {
	c.breaker.Reset(domain)
	c.logger.Info(context.Background(), "circuit reset", "domain", domain)
}

// ResetOpenCircuits force-closes every open circuit and returns their domains.
func (c *Client) ResetOpenCircuits() []string {
	var reset []string
	for _, s := range c.breaker.Snapshot() {
		if s.IsOpen {
			c.ResetCircuit(s.Domain)
			reset = append(reset, s.Domain)
		}
	}
	return reset
}
