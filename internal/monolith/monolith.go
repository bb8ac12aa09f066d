// Package monolith provides the application container and module interface.
package monolith

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fd1az/satsend/internal/circuitbreaker"
	"github.com/fd1az/satsend/internal/config"
	"github.com/fd1az/satsend/internal/di"
	"github.com/fd1az/satsend/internal/logger"
	"github.com/fd1az/satsend/internal/ratelimit"
	"github.com/fd1az/satsend/internal/resilient"
)

// Monolith is the main application container providing access to shared infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	Resilient() *resilient.Client
	Services() di.ServiceRegistry
}

// Module represents a bounded context module that can register services and start up.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

// app implements the Monolith interface.
type app struct {
	config    *config.Config
	logger    logger.LoggerInterface
	resilient *resilient.Client
	stats     ratelimit.Stats
	redis     redis.UniversalClient
	container di.Container
}

// New creates a new Monolith instance. The limiter and breaker registries are
// shared by every module so each domain has a single token bucket and a single circuit.
func New(cfg *config.Config, log logger.LoggerInterface) (*app, error) {
	a := &app{
		config:    cfg,
		logger:    log,
		container: di.NewContainer(),
	}

	stats, err := a.newStats()
	if err != nil {
		return nil, err
	}
	a.stats = stats

	limiter, err := ratelimit.NewProfileRegistry(
		ratelimit.Profile(cfg.RateLimit.Profile),
		ratelimit.WithStats(stats),
		ratelimit.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	breaker := circuitbreaker.NewRegistry(circuitbreaker.RegistryConfig{
		FailureThreshold: cfg.Circuit.FailureThreshold,
		BaseBackoff:      cfg.Circuit.BaseBackoff,
		MaxBackoff:       cfg.Circuit.MaxBackoff,
	}, circuitbreaker.WithLogger(log))

	a.resilient = resilient.New(limiter, breaker, resilient.Config{
		MaxAttempts:     cfg.Resilience.MaxAttempts,
		AttemptTimeout:  cfg.Resilience.AttemptTimeout,
		InitialInterval: cfg.Resilience.InitialInterval,
		MaxInterval:     cfg.Resilience.MaxInterval,
	}, resilient.WithLogger(log))

	// Register global services
	a.container.Register("config", cfg)
	a.container.Register("logger", log)
	a.container.Register("limiter", limiter)
	a.container.Register("breaker", breaker)
	a.container.Register("resilient", a.resilient)
	a.container.Register("limiterStats", stats)

	return a, nil
}

func (a *app) newStats() (ratelimit.Stats, error) {
	switch a.config.Stats.Backend {
	case "", "memory":
		return ratelimit.NewMemoryStats(), nil
	case "redis":
		a.redis = redis.NewClient(&redis.Options{
			Addr: a.config.Stats.RedisAddr,
			DB:   a.config.Stats.RedisDB,
		})
		return ratelimit.NewRedisStats(a.redis,
			ratelimit.WithStatsPrefix(a.config.Stats.KeyPrefix),
			ratelimit.WithStatsLogger(a.logger),
		), nil
	default:
		return nil, fmt.Errorf("unknown stats backend %q", a.config.Stats.Backend)
	}
}

func (a *app) Config() *config.Config {
	return a.config
}

func (a *app) Logger() logger.LoggerInterface {
	return a.logger
}

func (a *app) Resilient() *resilient.Client {
	return a.resilient
}

func (a *app) Services() di.ServiceRegistry {
	return a.container
}

// Container returns the DI container for module registration.
func (a *app) Container() di.Container {
	return a.container
}

// RegisterModules registers all provided modules.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts all provided modules.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// Stats reads back the limiter decisions recorded per domain.
func (a *app) Stats() ratelimit.StatsReader {
	return a.stats
}

// CheckStats pings the Redis stats sink, if one is configured.
func (a *app) CheckStats(ctx context.Context) (bool, string) {
	if a.redis == nil {
		return true, "memory"
	}
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return false, "redis: " + err.Error()
	}
	return true, "redis"
}

// Close flushes the limiter stats sink and closes Redis.
func (a *app) Close() error {
	if rs, ok := a.stats.(*ratelimit.RedisStats); ok {
		rs.Close()
	}
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
