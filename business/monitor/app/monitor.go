package app

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/fd1az/satsend/business/monitor/domain"
	networkDomain "github.com/fd1az/satsend/business/network/domain"
	"github.com/fd1az/satsend/internal/apperror"
	"github.com/fd1az/satsend/internal/logger"
)

const (
	DefaultInterval      = 30 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 2 * time.Second

	subscriberBuffer = 32
)

// Monitor polls watched addresses for incoming funds. Polls for the same
// address that overlap collapse into one request.
type Monitor struct {
	source        UTXOSource
	refresher     Refresher
	push          PushSource
	logger        logger.LoggerInterface
	interval      time.Duration
	retryAttempts int
	retryDelay    time.Duration
	now           func() time.Time

	group singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	watches map[string]*watch
	subs    map[int]chan domain.Snapshot
	nextSub int

	polls metric.Int64Counter
}

type watch struct {
	snap   domain.Snapshot
	cancel context.CancelFunc
	ctx    context.Context
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithRetry sets how many attempts a poll gets and the fixed delay between them.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(m *Monitor) {
		if attempts > 0 {
			m.retryAttempts = attempts
		}
		if delay >= 0 {
			m.retryDelay = delay
		}
	}
}

// WithRefresher sets the collaborator told about balance increases.
func WithRefresher(r Refresher) Option {
	return func(m *Monitor) { m.refresher = r }
}

// WithPushSource sets the push subscription kept in sync with the watch list.
func WithPushSource(p PushSource) Option {
	return func(m *Monitor) { m.push = p }
}

// WithLogger sets the logger.
func WithLogger(l logger.LoggerInterface) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// NewMonitor creates a Monitor reading UTXOs from source.
func NewMonitor(source UTXOSource, opts ...Option) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		source:        source,
		logger:        logger.Nop(),
		interval:      DefaultInterval,
		retryAttempts: DefaultRetryAttempts,
		retryDelay:    DefaultRetryDelay,
		now:           time.Now,
		ctx:           ctx,
		cancel:        cancel,
		watches:       make(map[string]*watch),
		subs:          make(map[int]chan domain.Snapshot),
	}
	for _, opt := range opts {
		opt(m)
	}

	meter := otel.Meter("satsend/monitor")
	m.polls, _ = meter.Int64Counter("monitor_polls_total",
		metric.WithDescription("Balance polls by outcome"))

	return m
}

// Watch starts polling address: once immediately, then every interval.
// Watching an address twice is a no-op.
func (m *Monitor) Watch(address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return apperror.Validation(apperror.CodeRequiredField, "address")
	}
	m.mu.Lock()
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return apperror.New(apperror.CodeInvalidState, apperror.WithContext("monitor stopped"))
	}
	if _, ok := m.watches[address]; ok {
		m.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(m.ctx)
	w := &watch{snap: domain.Snapshot{Address: address}, ctx: ctx, cancel: cancel}
	m.watches[address] = w
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(ctx, address)

	m.logger.Info(ctx, "watching address", "address", address, "interval", m.interval)
	m.syncPush()
	return nil
}

// Unwatch stops polling address and aborts its in-flight poll.
func (m *Monitor) Unwatch(address string) {
	m.mu.Lock()
	w, ok := m.watches[address]
	if ok {
		delete(m.watches, address)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	w.cancel()
	m.syncPush()
}

// Addresses returns the watched addresses in sorted order.
func (m *Monitor) Addresses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.watches))
	for a := range m.watches {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// Snapshot returns the current view of one watched address.
func (m *Monitor) Snapshot(address string) (domain.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.watches[address]
	if !ok {
		return domain.Snapshot{}, false
	}
	return w.snap, true
}

// Snapshots returns every watched address, sorted by address.
func (m *Monitor) Snapshots() []domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Snapshot, 0, len(m.watches))
	for _, w := range m.watches {
		out = append(out, w.snap)
	}
	slices.SortFunc(out, func(a, b domain.Snapshot) int { return strings.Compare(a.Address, b.Address) })
	return out
}

// Subscribe returns a channel of snapshots, one per completed poll, and a
// function that ends the subscription. Slow subscribers miss snapshots.
func (m *Monitor) Subscribe() (<-chan domain.Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan domain.Snapshot, subscriberBuffer)
	m.subs[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(ch)
		}
	}
}

// Foreground polls every watched address now, as when the app returns to
// the foreground. Poll failures are recorded, not returned. Unwatching an
// address aborts its poll.
func (m *Monitor) Foreground(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, address := range m.Addresses() {
		g.Go(func() error {
			pctx, cancel, ok := m.watchScoped(gctx, address)
			if !ok {
				return nil
			}
			defer cancel()
			m.poll(pctx, address)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// Hint asks for an immediate poll of address, typically after a push
// notification. Unknown addresses are ignored.
func (m *Monitor) Hint(address string) {
	m.mu.Lock()
	w, ok := m.watches[address]
	if !ok || m.ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		m.poll(w.ctx, address)
	}()
}

// Poll fetches a watched address now and returns the updated snapshot.
func (m *Monitor) Poll(ctx context.Context, address string) (domain.Snapshot, error) {
	pctx, cancel, ok := m.watchScoped(ctx, address)
	if !ok {
		return domain.Snapshot{}, apperror.NotFound(apperror.CodeNotFound, address)
	}
	defer cancel()
	if err := m.poll(pctx, address); err != nil {
		return domain.Snapshot{}, err
	}
	snap, _ := m.Snapshot(address)
	return snap, nil
}

// watchScoped derives a context from ctx that also ends when the watch on
// address ends. It reports false when address is not watched.
func (m *Monitor) watchScoped(ctx context.Context, address string) (context.Context, context.CancelFunc, bool) {
	m.mu.Lock()
	w, ok := m.watches[address]
	m.mu.Unlock()
	if !ok {
		return nil, nil, false
	}

	pctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(w.ctx, cancel)
	return pctx, func() {
		stop()
		cancel()
	}, true
}

// Stop ends every watch and waits for in-flight polls to return.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}

func (m *Monitor) run(ctx context.Context, address string) {
	defer m.wg.Done()

	m.poll(ctx, address)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll(ctx, address)
		}
	}
}

// poll runs one collapsed fetch for address and records its outcome.
func (m *Monitor) poll(ctx context.Context, address string) error {
	ch := m.group.DoChan(address, func() (any, error) {
		utxos, err := m.fetch(ctx, address)
		m.record(ctx, address, utxos, err)
		return nil, err
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-ch:
		return r.Err
	}
}

// fetch retries transient failures with a fixed delay.
func (m *Monitor) fetch(ctx context.Context, address string) ([]networkDomain.UTXO, error) {
	var policy backoff.BackOff = backoff.NewConstantBackOff(m.retryDelay)
	policy = backoff.WithContext(backoff.WithMaxRetries(policy, uint64(m.retryAttempts-1)), ctx)

	attempt := 0
	return backoff.RetryWithData(func() ([]networkDomain.UTXO, error) {
		attempt++
		utxos, err := m.source.GetUTXOs(ctx, address)
		if err == nil {
			return utxos, nil
		}
		if !transient(err) {
			return nil, backoff.Permanent(err)
		}
		m.logger.Debug(ctx, "balance poll attempt failed",
			"address", address,
			"attempt", attempt,
			"error", err)
		return nil, err
	}, policy)
}

func transient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch apperror.KindOf(err) {
	case apperror.KindCircuitOpen, apperror.KindQueueFull:
		return true
	}
	return apperror.IsRetryable(err)
}

func (m *Monitor) record(ctx context.Context, address string, utxos []networkDomain.UTXO, err error) {
	if ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	w, ok := m.watches[address]
	if !ok {
		m.mu.Unlock()
		return
	}

	var increased, surface bool
	if err != nil {
		surface = w.snap.Fail(err, m.now())
	} else {
		increased = w.snap.Apply(domain.Observe(utxos), m.now())
	}
	snap := w.snap
	m.publishLocked(snap)
	m.mu.Unlock()

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.polls.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))

	switch {
	case err != nil && surface:
		m.logger.Warn(ctx, "balance poll failed, suppressing further errors for address",
			"address", address,
			"kind", apperror.KindOf(err),
			"error", err)
	case err != nil:
		m.logger.Debug(ctx, "balance poll failed", "address", address, "failures", snap.ConsecutiveFailures)
	case increased:
		m.logger.Info(ctx, "incoming funds detected",
			"address", address,
			"confirmed_sats", snap.ConfirmedSats,
			"unconfirmed_sats", snap.UnconfirmedSats)
		if m.refresher != nil {
			if rerr := m.refresher.Refresh(ctx, snap); rerr != nil {
				m.logger.Warn(ctx, "wallet refresh failed", "address", address, "error", rerr)
			}
		}
	}
}

// publishLocked fans snap out to subscribers. m.mu must be held.
func (m *Monitor) publishLocked(snap domain.Snapshot) {
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (m *Monitor) syncPush() {
	if m.push == nil {
		return
	}
	if err := m.push.Track(m.ctx, m.Addresses()); err != nil {
		m.logger.Debug(m.ctx, "push subscription not updated", "error", err)
	}
}
