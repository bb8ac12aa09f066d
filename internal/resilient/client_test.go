package resilient

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/satsend/internal/apperror"
	"github.com/fd1az/satsend/internal/circuitbreaker"
	"github.com/fd1az/satsend/internal/ratelimit"
)

func newClient(t *testing.T, threshold int) (*Client, *circuitbreaker.Registry) {
	t.Helper()
	limiter, err := ratelimit.NewRegistry(map[string]ratelimit.DomainConfig{
		ratelimit.DefaultDomain: {Domain: ratelimit.DefaultDomain, RequestsPerSecond: 1000, BurstLimit: 100, QueueLimit: 100},
	})
	require.NoError(t, err)

	breaker := circuitbreaker.NewRegistry(circuitbreaker.RegistryConfig{
		FailureThreshold: threshold,
		BaseBackoff:      time.Minute,
		MaxBackoff:       time.Hour,
	})

	c := New(limiter, breaker, Config{
		MaxAttempts:     3,
		AttemptTimeout:  50 * time.Millisecond,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	})
	return c, breaker
}

func TestExecute_RetriesTransientThenSucceeds(t *testing.T) {
	c, breaker := newClient(t, 3)

	var calls atomic.Int32
	v, err := Execute(context.Background(), c, "api.example", func(ctx context.Context) (string, error) {
		if calls.Add(1) < 3 {
			return "", apperror.HTTP("api.example", http.StatusServiceUnavailable, "busy")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, int32(3), calls.Load())
	assert.Zero(t, breaker.State("api.example").ConsecutiveFailures)
}

func TestExecute_ExhaustedRetriesCountOnce(t *testing.T) {
	c, breaker := newClient(t, 3)

	var calls atomic.Int32
	_, err := Execute(context.Background(), c, "api.example", func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, apperror.HTTP("api.example", http.StatusServiceUnavailable, "")
	})

	require.Error(t, err)
	assert.Equal(t, apperror.KindHTTPError, apperror.KindOf(err))
	assert.Equal(t, http.StatusServiceUnavailable, apperror.UpstreamStatus(err))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 1, breaker.State("api.example").ConsecutiveFailures)
}

func TestExecute_NonRetryableSurfacesImmediately(t *testing.T) {
	c, breaker := newClient(t, 3)

	var calls atomic.Int32
	err := c.Do(context.Background(), "api.example", func(ctx context.Context) error {
		calls.Add(1)
		return apperror.HTTP("api.example", http.StatusBadRequest, "bad-txns-inputs-missingorspent")
	})

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Zero(t, breaker.State("api.example").ConsecutiveFailures)
}

func TestExecute_RateLimited429IsRetried(t *testing.T) {
	c, _ := newClient(t, 3)

	var calls atomic.Int32
	err := c.Do(context.Background(), "api.example", func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			return apperror.HTTP("api.example", http.StatusTooManyRequests, "")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestExecute_OpenCircuitFailsFast(t *testing.T) {
	c, breaker := newClient(t, 1)
	breaker.OnResult(circuitbreaker.Permit{Domain: "api.example"}, false)

	called := false
	err := c.Do(context.Background(), "api.example", func(ctx context.Context) error {
		called = true
		return nil
	})

	assert.False(t, called)
	assert.Equal(t, apperror.KindCircuitOpen, apperror.KindOf(err))

	c.ResetCircuit("api.example")
	assert.NoError(t, c.Do(context.Background(), "api.example", func(ctx context.Context) error { return nil }))
}

func TestExecute_CancelledClosedCallKeepsProbeSlot(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	limiter, err := ratelimit.NewRegistry(map[string]ratelimit.DomainConfig{
		ratelimit.DefaultDomain: {Domain: ratelimit.DefaultDomain, RequestsPerSecond: 1000, BurstLimit: 100, QueueLimit: 100},
	})
	require.NoError(t, err)
	breaker := circuitbreaker.NewRegistry(circuitbreaker.RegistryConfig{
		FailureThreshold: 1,
		BaseBackoff:      30 * time.Second,
		MaxBackoff:       time.Minute,
	}, circuitbreaker.WithClock(clock))
	c := New(limiter, breaker, Config{
		MaxAttempts:     1,
		AttemptTimeout:  time.Minute,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- c.Do(ctx, "api.example", func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		})
	}()
	<-started

	breaker.OnResult(circuitbreaker.Permit{Domain: "api.example"}, false)
	mu.Lock()
	now = now.Add(30 * time.Second)
	mu.Unlock()
	probe, err := breaker.BeforeCall("api.example")
	require.NoError(t, err)
	require.True(t, probe.IsProbe)

	cancel()
	require.Error(t, <-done)

	_, err = breaker.BeforeCall("api.example")
	assert.Equal(t, apperror.KindCircuitOpen, apperror.KindOf(err))
	assert.Equal(t, circuitbreaker.StatusHalfOpen, breaker.State("api.example").Status())

	breaker.OnResult(probe, true)
	assert.Equal(t, circuitbreaker.StatusClosed, breaker.State("api.example").Status())
}

func TestExecute_PerAttemptTimeout(t *testing.T) {
	c, breaker := newClient(t, 3)

	var calls atomic.Int32
	start := time.Now()
	err := c.Do(context.Background(), "slow.example", func(ctx context.Context) error {
		calls.Add(1)
		<-ctx.Done()
		return ctx.Err()
	})

	require.Error(t, err)
	assert.Equal(t, apperror.KindNetworkTimeout, apperror.KindOf(err))
	assert.Equal(t, int32(3), calls.Load())
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, breaker.State("slow.example").ConsecutiveFailures)
}

func TestExecute_CallerCancellation(t *testing.T) {
	c, breaker := newClient(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	err := c.Do(ctx, "api.example", func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, breaker.State("api.example").IsOpen)
}

func TestExecute_RawNetworkErrorsAreClassified(t *testing.T) {
	c, _ := newClient(t, 3)

	err := c.Do(context.Background(), "api.example", func(ctx context.Context) error {
		return errors.New("unexpected EOF in body")
	})

	require.Error(t, err)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "api.example", appErr.Domain)
}

func TestStatuses(t *testing.T) {
	c, breaker := newClient(t, 1)

	require.NoError(t, c.Do(context.Background(), "a.example", func(ctx context.Context) error { return nil }))
	breaker.OnResult(circuitbreaker.Permit{Domain: "b.example"}, false)

	statuses := c.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "a.example", statuses[0].Domain)
	assert.False(t, statuses[0].Circuit.IsOpen)
	assert.True(t, statuses[1].Circuit.IsOpen)

	assert.Equal(t, []string{"b.example"}, c.ResetOpenCircuits())
	assert.False(t, c.Status("b.example").Circuit.IsOpen)
}
