package circuitbreaker

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/satsend/internal/apperror"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(threshold int) (*Registry, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewRegistry(RegistryConfig{
		FailureThreshold: threshold,
		BaseBackoff:      30 * time.Second,
		MaxBackoff:       2 * time.Minute,
	}, WithClock(clock.Now))
	return r, clock
}

func fail(r *Registry, domain string, n int) {
	for i := 0; i < n; i++ {
		r.OnResult(Permit{Domain: domain}, false)
	}
}

func admit(t *testing.T, r *Registry, domain string) Permit {
	t.Helper()
	p, err := r.BeforeCall(domain)
	require.NoError(t, err)
	return p
}

func rejected(r *Registry, domain string) bool {
	_, err := r.BeforeCall(domain)
	return err != nil
}

func TestRegistry_OpensAfterThreshold(t *testing.T) {
	r, _ := newTestRegistry(3)

	fail(r, "mempool.space", 2)
	admit(t, r, "mempool.space")

	fail(r, "mempool.space", 1)
	_, err := r.BeforeCall("mempool.space")
	require.Error(t, err)
	assert.Equal(t, apperror.KindCircuitOpen, apperror.KindOf(err))

	st := r.State("mempool.space")
	assert.True(t, st.IsOpen)
	assert.Equal(t, StatusOpen, st.Status())
	assert.Equal(t, 1, st.ConsecutiveOpens)

	// other domains are unaffected
	assert.False(t, rejected(r, "blockstream.info"))
}

func TestRegistry_SuccessResetsFailureCount(t *testing.T) {
	r, _ := newTestRegistry(3)

	fail(r, "d", 2)
	r.OnResult(Permit{Domain: "d"}, true)
	fail(r, "d", 2)

	assert.False(t, rejected(r, "d"))
	assert.Equal(t, 2, r.State("d").ConsecutiveFailures)
}

func TestRegistry_ExactlyOneProbe(t *testing.T) {
	r, clock := newTestRegistry(3)
	fail(r, "d", 3)

	clock.Advance(29 * time.Second)
	assert.True(t, rejected(r, "d"))

	clock.Advance(time.Second)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p, err := r.BeforeCall("d"); err == nil {
				assert.True(t, p.IsProbe)
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
	assert.Equal(t, StatusHalfOpen, r.State("d").Status())
}

func TestRegistry_ProbeSuccessCloses(t *testing.T) {
	r, clock := newTestRegistry(3)
	fail(r, "d", 3)
	clock.Advance(30 * time.Second)

	probe := admit(t, r, "d")
	require.True(t, probe.IsProbe)
	r.OnResult(probe, true)

	st := r.State("d")
	assert.Equal(t, StatusClosed, st.Status())
	assert.Zero(t, st.ConsecutiveFailures)
	assert.Zero(t, st.ConsecutiveOpens)
	assert.False(t, admit(t, r, "d").IsProbe)
}

func TestRegistry_ProbeFailureBacksOffExponentially(t *testing.T) {
	r, clock := newTestRegistry(3)
	start := clock.Now()
	fail(r, "d", 3)
	assert.Equal(t, start.Add(30*time.Second), r.State("d").NextAttemptTime)

	wantDelays := []time.Duration{60 * time.Second, 120 * time.Second, 120 * time.Second}
	for i, want := range wantDelays {
		clock.Advance(r.State("d").NextAttemptTime.Sub(clock.Now()))
		r.OnResult(admit(t, r, "d"), false)

		st := r.State("d")
		assert.True(t, st.IsOpen)
		assert.Equal(t, i+2, st.ConsecutiveOpens)
		assert.Equal(t, clock.Now().Add(want), st.NextAttemptTime, "open %d", i+2)
	}
}

func TestRegistry_AbandonedProbeFreesSlot(t *testing.T) {
	r, clock := newTestRegistry(3)
	fail(r, "d", 3)
	clock.Advance(30 * time.Second)

	probe := admit(t, r, "d")
	require.True(t, rejected(r, "d"))

	r.Abandon(probe)
	assert.Equal(t, StatusOpen, r.State("d").Status())
	assert.True(t, admit(t, r, "d").IsProbe)

	// a second Abandon of the same permit cannot free the new probe's slot
	r.Abandon(probe)
	assert.True(t, rejected(r, "d"))
}

func TestRegistry_AbandonFromClosedCallKeepsProbeSlot(t *testing.T) {
	r, clock := newTestRegistry(3)
	slow := admit(t, r, "d")
	require.False(t, slow.IsProbe)

	fail(r, "d", 3)
	clock.Advance(30 * time.Second)
	probe := admit(t, r, "d")
	require.True(t, probe.IsProbe)

	r.Abandon(slow)

	assert.Equal(t, StatusHalfOpen, r.State("d").Status())
	assert.True(t, rejected(r, "d"), "second probe admitted while the first is in flight")
}

func TestRegistry_LateResultsDoNotOverrideProbe(t *testing.T) {
	r, clock := newTestRegistry(3)
	slow := admit(t, r, "d")

	fail(r, "d", 3)
	clock.Advance(30 * time.Second)
	probe := admit(t, r, "d")

	r.OnResult(slow, false)
	st := r.State("d")
	assert.Equal(t, StatusHalfOpen, st.Status())
	assert.Equal(t, 1, st.ConsecutiveOpens)

	r.OnResult(probe, true)
	st = r.State("d")
	assert.Equal(t, StatusClosed, st.Status())
	assert.Zero(t, st.ConsecutiveOpens)
}

func TestRegistry_StaleProbeIgnoredAfterReset(t *testing.T) {
	r, clock := newTestRegistry(1)
	fail(r, "d", 1)
	clock.Advance(30 * time.Second)
	stale := admit(t, r, "d")

	r.Reset("d")
	fail(r, "d", 1)
	clock.Advance(30 * time.Second)
	probe := admit(t, r, "d")

	r.OnResult(stale, true)
	assert.Equal(t, StatusHalfOpen, r.State("d").Status())

	r.OnResult(probe, false)
	assert.Equal(t, StatusOpen, r.State("d").Status())
}

func TestRegistry_ResetForceCloses(t *testing.T) {
	r, _ := newTestRegistry(3)
	fail(r, "d", 3)
	require.True(t, rejected(r, "d"))

	r.Reset("d")

	assert.False(t, rejected(r, "d"))
	assert.Equal(t, State{Domain: "d"}, r.State("d"))
}

func TestRegistry_Snapshot(t *testing.T) {
	r, _ := newTestRegistry(1)
	fail(r, "b.example", 1)
	r.OnResult(Permit{Domain: "a.example"}, true)

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a.example", snap[0].Domain)
	assert.False(t, snap[0].IsOpen)
	assert.True(t, snap[1].IsOpen)
}

func TestBreaker_TripsAndRejects(t *testing.T) {
	var changes []gobreaker.State
	cfg := DefaultConfig("redis-stats")
	cfg.ConsecutiveFailures = 2
	cfg.OnStateChange = func(_ string, _, to gobreaker.State) {
		changes = append(changes, to)
	}
	b := New[int64](cfg)

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		_, err := b.Execute(func() (int64, error) { return 0, boom })
		assert.ErrorIs(t, err, boom)
	}

	_, err := b.Execute(func() (int64, error) { return 1, nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, gobreaker.StateOpen, b.State())
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, changes)
}
