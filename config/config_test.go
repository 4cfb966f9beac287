package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 5*time.Minute, cfg.CacheTTL())
	assert.Equal(t, 2, cfg.Retries())
	assert.Equal(t, time.Second, cfg.RetryDelay())
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 5, cfg.MaxConcurrentRequests)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing base_url", func(c *Config) { c.BaseURL = "" }, true},
		{"bad scheme", func(c *Config) { c.BaseURL = "ftp://example.com" }, true},
		{"negative ttl", func(c *Config) { c.CacheTTLMs = -1 }, true},
		{"zero retries", func(c *Config) { c.MaxRetries = Int(0) }, false},
		{"retries too high", func(c *Config) { c.MaxRetries = Int(11) }, true},
		{"timeout too high", func(c *Config) { c.RequestTimeoutMs = Int(301_000) }, true},
		{"rate limit without rate", func(c *Config) { c.RateLimit.Enabled = true }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.BaseURL = "http://localhost:8080"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoader_JSONFile(t *testing.T) {
	path := writeTempConfig(t, "config.json", `{
		"base_url": "https://api.example.com",
		"cache_ttl_ms": 60000,
		"max_retries": 3
	}`)

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.BaseURL)
	assert.Equal(t, time.Minute, cfg.CacheTTL())
	assert.Equal(t, 3, cfg.Retries())
	// Defaults fill the rest
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 5, cfg.MaxConcurrentRequests)
}

func TestLoader_YAMLFile(t *testing.T) {
	path := writeTempConfig(t, "config.yaml", `
base_url: https://api.example.com
retry_delay_ms: 500
rate_limit:
  enabled: true
  requests_per_second: 10
metrics:
  enabled: true
  port: 9191
`)

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.RetryDelay())
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 10.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1, cfg.RateLimit.Burst) // defaulted
	assert.Equal(t, 9191, cfg.Metrics.Port)
	assert.Equal(t, "/metrics", cfg.Metrics.Path) // defaulted
}

func TestLoader_ExplicitZeroValues(t *testing.T) {
	cfg, err := NewLoader().LoadJSON([]byte(`{
		"base_url": "https://api.example.com",
		"max_retries": 0,
		"retry_delay_ms": 0,
		"request_timeout_ms": 0
	}`))
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Retries(), "explicit 0 must not revert to the default")
	assert.Equal(t, time.Duration(0), cfg.RetryDelay())
	assert.Equal(t, time.Duration(0), cfg.RequestTimeout())
}

func TestLoader_SchemaRejectsUnknownField(t *testing.T) {
	path := writeTempConfig(t, "config.json", `{
		"base_url": "https://api.example.com",
		"cache_ttl": 60000
	}`)

	_, err := NewLoader().LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation")
}

func TestLoader_SchemaRejectsMissingBaseURL(t *testing.T) {
	_, err := NewLoader().LoadJSON([]byte(`{"max_retries": 2}`))
	assert.Error(t, err)
}

func TestLoader_InvalidJSON(t *testing.T) {
	_, err := NewLoader().LoadJSON([]byte(`{not json`))
	assert.Error(t, err)
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := NewLoader().LoadFile("/nonexistent/config.json")
	assert.Error(t, err)
}
