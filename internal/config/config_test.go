package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  name: satsend\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mainnet", cfg.Network.Name)
	assert.Equal(t, "production", cfg.RateLimit.Profile)
	assert.Equal(t, 3, cfg.Circuit.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Circuit.BaseBackoff)
	assert.Equal(t, 10*time.Minute, cfg.Circuit.MaxBackoff)
	assert.Equal(t, 3, cfg.Resilience.MaxAttempts)
	assert.Equal(t, 15*time.Second, cfg.Resilience.AttemptTimeout)
	assert.Equal(t, 30*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 100, cfg.Send.MaxInputs)
	assert.Equal(t, "memory", cfg.Stats.Backend)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
network:
  name: testnet
circuit:
  failure_threshold: 5
monitor:
  addresses:
    - tb1qunjkws5z3jxgh268c840kytl5622fwzf35k068
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("SATSEND_RATELIMIT_PROFILE", "emergency")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Network.IsTestnet())
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
	assert.Equal(t, "emergency", cfg.RateLimit.Profile)
	assert.Equal(t, []string{"tb1qunjkws5z3jxgh268c840kytl5622fwzf35k068"}, cfg.Monitor.Addresses)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Network:    NetworkConfig{Name: "mainnet"},
			Endpoints:  EndpointsConfig{MempoolURL: "https://mempool.space", EsploraURL: "https://blockstream.info"},
			RateLimit:  RateLimitConfig{Profile: "production"},
			Circuit:    CircuitConfig{FailureThreshold: 3, BaseBackoff: 30 * time.Second, MaxBackoff: 10 * time.Minute},
			Resilience: ResilienceConfig{MaxAttempts: 3, AttemptTimeout: 15 * time.Second},
			Send:       SendConfig{ExecutionMode: "live"},
			Monitor:    MonitorConfig{Interval: 30 * time.Second},
			Stats:      StatsConfig{Backend: "memory"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"bad network", func(c *Config) { c.Network.Name = "regtest" }, true},
		{"bad endpoint", func(c *Config) { c.Endpoints.EsploraURL = "not a url" }, true},
		{"bad profile", func(c *Config) { c.RateLimit.Profile = "turbo" }, true},
		{"zero threshold", func(c *Config) { c.Circuit.FailureThreshold = 0 }, true},
		{"max below base", func(c *Config) { c.Circuit.MaxBackoff = time.Second }, true},
		{"bad mode", func(c *Config) { c.Send.ExecutionMode = "success" }, true},
		{"bad stats backend", func(c *Config) { c.Stats.Backend = "etcd" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
