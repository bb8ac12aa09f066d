// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Network    NetworkConfig    `mapstructure:"network"`
	Endpoints  EndpointsConfig  `mapstructure:"endpoints"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Circuit    CircuitConfig    `mapstructure:"circuit"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
	Fees       FeesConfig       `mapstructure:"fees"`
	Send       SendConfig       `mapstructure:"send"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Stats      StatsConfig      `mapstructure:"stats"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // json, text or tint
	TUIMode     bool   `mapstructure:"-"`          // set at runtime from flags
}

// NetworkConfig selects the Bitcoin network.
type NetworkConfig struct {
	Name string `mapstructure:"name"` // mainnet or testnet
}

// IsTestnet reports whether the configured network is testnet.
func (n NetworkConfig) IsTestnet() bool {
	return n.Name == "testnet"
}

// EndpointsConfig holds the block explorer hosts, in priority order.
type EndpointsConfig struct {
	MempoolURL   string        `mapstructure:"mempool_url"`
	EsploraURL   string        `mapstructure:"esplora_url"`
	WebSocketURL string        `mapstructure:"websocket_url"` // mempool.space push channel
	Timeout      time.Duration `mapstructure:"timeout"`
}

// RateLimitConfig selects a limiter profile.
type RateLimitConfig struct {
	Profile string `mapstructure:"profile"` // production, development or emergency
}

// CircuitConfig holds per-domain breaker tuning.
type CircuitConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	BaseBackoff      time.Duration `mapstructure:"base_backoff"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff"`
}

// ResilienceConfig holds retry tuning for remote calls.
type ResilienceConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	AttemptTimeout  time.Duration `mapstructure:"attempt_timeout"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// FeesConfig holds fee estimation settings.
type FeesConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// SendConfig holds send pipeline settings.
type SendConfig struct {
	ExecutionMode string `mapstructure:"execution_mode"` // live, simulate_success, simulate_failure
	SignerCommand string `mapstructure:"signer_command"` // external signer for live mode
	MaxInputs     int    `mapstructure:"max_inputs"`
}

// MonitorConfig holds balance monitor settings.
type MonitorConfig struct {
	Addresses     []string      `mapstructure:"addresses"`
	Interval      time.Duration `mapstructure:"interval"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	PushEnabled   bool          `mapstructure:"push_enabled"`
}

// StatsConfig selects where limiter decisions are recorded.
type StatsConfig struct {
	Backend   string `mapstructure:"backend"` // memory or redis
	RedisAddr string `mapstructure:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	Exporter       string `mapstructure:"exporter"` // otlp-grpc, otlp-http, zipkin or stdout
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
	HealthPort     int    `mapstructure:"health_port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("SATSEND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "SATSEND_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "SATSEND_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "SATSEND_LOG_LEVEL", "LOG_LEVEL")
	v.BindEnv("app.log_format", "SATSEND_LOG_FORMAT", "LOG_FORMAT")

	// Network
	v.BindEnv("network.name", "SATSEND_NETWORK", "BITCOIN_NETWORK")

	// Endpoints
	v.BindEnv("endpoints.mempool_url", "SATSEND_MEMPOOL_URL")
	v.BindEnv("endpoints.esplora_url", "SATSEND_ESPLORA_URL")
	v.BindEnv("endpoints.websocket_url", "SATSEND_MEMPOOL_WS_URL")

	// Rate limiting
	v.BindEnv("ratelimit.profile", "SATSEND_RATELIMIT_PROFILE")

	// Send
	v.BindEnv("send.execution_mode", "SATSEND_EXECUTION_MODE")
	v.BindEnv("send.signer_command", "SATSEND_SIGNER_COMMAND")

	// Monitor
	v.BindEnv("monitor.addresses", "SATSEND_WATCH")
	v.BindEnv("monitor.push_enabled", "SATSEND_MONITOR_PUSH")

	// Stats
	v.BindEnv("stats.backend", "SATSEND_STATS_BACKEND")
	v.BindEnv("stats.redis_addr", "SATSEND_REDIS_ADDR", "REDIS_ADDR")

	// Telemetry
	v.BindEnv("telemetry.enabled", "SATSEND_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "SATSEND_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "SATSEND_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("telemetry.otlp_headers", "SATSEND_OTEL_HEADERS", "OTEL_EXPORTER_OTLP_HEADERS")
	v.BindEnv("telemetry.exporter", "SATSEND_OTEL_EXPORTER")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "satsend")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	v.SetDefault("network.name", "mainnet")

	v.SetDefault("endpoints.mempool_url", "https://mempool.space")
	v.SetDefault("endpoints.esplora_url", "https://blockstream.info")
	v.SetDefault("endpoints.websocket_url", "wss://mempool.space")
	v.SetDefault("endpoints.timeout", "15s")

	v.SetDefault("ratelimit.profile", "production")

	v.SetDefault("circuit.failure_threshold", 3)
	v.SetDefault("circuit.base_backoff", "30s")
	v.SetDefault("circuit.max_backoff", "10m")

	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.attempt_timeout", "15s")
	v.SetDefault("resilience.initial_interval", "500ms")
	v.SetDefault("resilience.max_interval", "5s")

	v.SetDefault("fees.cache_ttl", "30s")

	v.SetDefault("send.execution_mode", "live")
	v.SetDefault("send.max_inputs", 100)

	v.SetDefault("monitor.interval", "30s")
	v.SetDefault("monitor.retry_attempts", 3)
	v.SetDefault("monitor.retry_delay", "2s")
	v.SetDefault("monitor.push_enabled", false)

	v.SetDefault("stats.backend", "memory")
	v.SetDefault("stats.redis_addr", "localhost:6379")
	v.SetDefault("stats.key_prefix", "satsend:ratelimit")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "satsend")
	v.SetDefault("telemetry.exporter", "otlp-grpc")
	v.SetDefault("telemetry.prometheus_port", 9090)
	v.SetDefault("telemetry.health_port", 8081)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !slices.Contains([]string{"mainnet", "testnet"}, c.Network.Name) {
		return fmt.Errorf("network.name must be mainnet or testnet, got %q", c.Network.Name)
	}
	for key, raw := range map[string]string{
		"endpoints.mempool_url": c.Endpoints.MempoolURL,
		"endpoints.esplora_url": c.Endpoints.EsploraURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return fmt.Errorf("invalid %s: %q", key, raw)
		}
	}
	if !slices.Contains([]string{"production", "development", "emergency"}, c.RateLimit.Profile) {
		return fmt.Errorf("unknown ratelimit.profile: %q", c.RateLimit.Profile)
	}
	if c.Circuit.FailureThreshold < 1 {
		return fmt.Errorf("circuit.failure_threshold must be >= 1")
	}
	if c.Circuit.BaseBackoff <= 0 || c.Circuit.MaxBackoff < c.Circuit.BaseBackoff {
		return fmt.Errorf("circuit backoff must satisfy 0 < base_backoff <= max_backoff")
	}
	if c.Resilience.MaxAttempts < 1 {
		return fmt.Errorf("resilience.max_attempts must be >= 1")
	}
	if c.Resilience.AttemptTimeout <= 0 {
		return fmt.Errorf("resilience.attempt_timeout must be positive")
	}
	if !slices.Contains([]string{"live", "simulate_success", "simulate_failure"}, c.Send.ExecutionMode) {
		return fmt.Errorf("unknown send.execution_mode: %q", c.Send.ExecutionMode)
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive")
	}
	if c.Stats.Backend != "memory" && c.Stats.Backend != "redis" {
		return fmt.Errorf("stats.backend must be memory or redis, got %q", c.Stats.Backend)
	}
	return nil
}
