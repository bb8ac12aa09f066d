package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/fd1az/satsend/internal/circuitbreaker"
	"github.com/fd1az/satsend/internal/logger"
)

type statsEvent struct {
	domain   string
	decision Decision
	at       time.Time
}

// RedisStats persists decision counters in Redis hashes:
//
//	<prefix>:total                 field <domain>:<decision>
//	<prefix>:minute:<yyyymmddhhmm> field <domain>:<decision>, expiring after ttl
//
// Writes happen on a background goroutine behind a circuit breaker so a slow
// or missing Redis never delays Acquire. Events are dropped when the buffer
// is full or the breaker is open.
type RedisStats struct {
	rdb     redis.UniversalClient
	prefix  string
	ttl     time.Duration
	breaker *circuitbreaker.Breaker[int64]
	logger  logger.LoggerInterface

	events chan statsEvent
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

var _ Stats = (*RedisStats)(nil)

// RedisStatsOption configures RedisStats.
type RedisStatsOption func(*RedisStats)

// WithStatsPrefix sets the key prefix.
func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStats) { s.prefix = strings.Trim(prefix, ":") }
}

// WithStatsTTL sets the expiry of per-minute buckets.
func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStats) { s.ttl = d }
}

// WithStatsLogger sets the logger.
func WithStatsLogger(l logger.LoggerInterface) RedisStatsOption {
	return func(s *RedisStats) { s.logger = l }
}

// NewRedisStats starts a RedisStats writer. Call Close to flush and stop it.
func NewRedisStats(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStats {
	s := &RedisStats{
		rdb:    rdb,
		prefix: "satsend:ratelimit",
		ttl:    24 * time.Hour,
		logger: logger.Nop(),
		events: make(chan statsEvent, 1024),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	cfg := circuitbreaker.DefaultConfig("redis-stats")
	cfg.OnStateChange = func(name string, from, to gobreaker.State) {
		s.logger.Warn(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	s.breaker = circuitbreaker.New[int64](cfg)

	s.wg.Add(1)
	go s.run()
	return s
}

// Record implements StatsRecorder.
func (s *RedisStats) Record(_ context.Context, domain string, d Decision) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.events <- statsEvent{domain: domain, decision: d, at: time.Now()}:
	default:
	}
}

func (s *RedisStats) run() {
	defer s.wg.Done()
	for {
		select {
		case ev := <-s.events:
			s.write(ev)
		case <-s.done:
			for {
				select {
				case ev := <-s.events:
					s.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *RedisStats) write(ev statsEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := s.breaker.Execute(func() (int64, error) {
		field := statsField(ev.domain, ev.decision)
		bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, ev.at.UTC().Format("200601021504"))

		pipe := s.rdb.Pipeline()
		total := pipe.HIncrBy(ctx, s.prefix+":total", field, 1)
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, err
		}
		return total.Val(), nil
	})
	if err != nil && err != gobreaker.ErrOpenState {
		s.logger.Debug(ctx, "ratelimit stats write failed", "error", err)
	}
}

// Counts reads the cumulative counters for domain.
func (s *RedisStats) Counts(ctx context.Context, domain string) (Counters, error) {
	raw, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return nil, err
	}

	out := make(Counters)
	for field, v := range raw {
		d, decision, ok := splitField(field)
		if !ok || d != domain {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[decision] = n
	}
	return out, nil
}

func statsField(domain string, d Decision) string {
	return domain + ":" + string(d)
}

// splitField undoes "<domain>:<decision>". Domains may carry a port, so the
// decision is everything after the last colon.
func splitField(field string) (string, Decision, bool) {
	i := strings.LastIndex(field, ":")
	if i <= 0 || i == len(field)-1 {
		return "", "", false
	}
	return field[:i], Decision(field[i+1:]), true
}

// Close drains pending events and stops the writer.
func (s *RedisStats) Close() {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}
