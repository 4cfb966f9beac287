// Package config provides file-based configuration for the FetchKit client.
// Configuration files may be JSON or YAML; both are validated against an
// embedded JSON schema before unmarshaling, then range-checked by Validate.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/c360/fetchkit/errors"
	"github.com/c360/fetchkit/pkg/tlsutil"
)

// Defaults applied by ApplyDefaults when fields are unset.
const (
	DefaultCacheTTLMs            = 5 * 60 * 1000 // 5 minutes
	DefaultSweepIntervalMs       = 60 * 1000     // 1 minute
	DefaultMaxRetries            = 2
	DefaultRetryDelayMs          = 1000
	DefaultRequestTimeoutMs      = 30 * 1000 // 30 seconds
	DefaultMaxConcurrentRequests = 5
)

// Config represents the complete client configuration.
type Config struct {
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// BaseURL is prepended to relative endpoints. Required.
	BaseURL string `json:"base_url" yaml:"base_url"`

	CacheTTLMs           int `json:"cache_ttl_ms,omitempty" yaml:"cache_ttl_ms,omitempty"`
	CacheSweepIntervalMs int `json:"cache_sweep_interval_ms,omitempty" yaml:"cache_sweep_interval_ms,omitempty"`

	// MaxRetries, RetryDelayMs and RequestTimeoutMs are pointers so an
	// explicit 0 (no retries, no backoff, no deadline) is distinct from
	// an absent field, which takes the default.
	MaxRetries       *int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	RetryDelayMs     *int `json:"retry_delay_ms,omitempty" yaml:"retry_delay_ms,omitempty"`
	RequestTimeoutMs *int `json:"request_timeout_ms,omitempty" yaml:"request_timeout_ms,omitempty"`

	MaxConcurrentRequests int `json:"max_concurrent_requests,omitempty" yaml:"max_concurrent_requests,omitempty"`

	// Headers are sent with every request.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	RateLimit RateLimitConfig `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
	Metrics   MetricsConfig   `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	TLS       TLSConfig       `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// RateLimitConfig defines optional token-bucket throttling of outbound requests.
type RateLimitConfig struct {
	Enabled           bool    `json:"enabled" yaml:"enabled"`
	RequestsPerSecond float64 `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty"`
	Burst             int     `json:"burst,omitempty" yaml:"burst,omitempty"`
}

// MetricsConfig defines the optional Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port,omitempty" yaml:"port,omitempty"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
}

// TLSConfig groups client- and server-side TLS settings.
type TLSConfig struct {
	Client tlsutil.ClientConfig `json:"client,omitempty" yaml:"client,omitempty"`
	Server tlsutil.ServerConfig `json:"server,omitempty" yaml:"server,omitempty"`
}

// DefaultConfig returns a configuration with all defaults applied.
// BaseURL is left empty and must be set by the caller.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset numeric fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.CacheTTLMs == 0 {
		c.CacheTTLMs = DefaultCacheTTLMs
	}
	if c.CacheSweepIntervalMs == 0 {
		c.CacheSweepIntervalMs = DefaultSweepIntervalMs
	}
	if c.MaxRetries == nil {
		c.MaxRetries = Int(DefaultMaxRetries)
	}
	if c.RetryDelayMs == nil {
		c.RetryDelayMs = Int(DefaultRetryDelayMs)
	}
	if c.RequestTimeoutMs == nil {
		c.RequestTimeoutMs = Int(DefaultRequestTimeoutMs)
	}
	if c.MaxConcurrentRequests == 0 {
		c.MaxConcurrentRequests = DefaultMaxConcurrentRequests
	}
	if c.RateLimit.Enabled && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 1
	}
	if c.Metrics.Enabled && c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
	if c.Metrics.Enabled && c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "base_url is required")
	}

	parsed, err := url.Parse(c.BaseURL)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "invalid base_url")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("base_url scheme must be http or https, got %q", parsed.Scheme))
	}

	if c.CacheTTLMs < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"cache_ttl_ms cannot be negative")
	}

	if c.MaxRetries != nil && (*c.MaxRetries < 0 || *c.MaxRetries > 10) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_retries must be between 0 and 10")
	}

	if c.RetryDelayMs != nil && *c.RetryDelayMs < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"retry_delay_ms cannot be negative")
	}

	if c.RequestTimeoutMs != nil && (*c.RequestTimeoutMs < 0 || *c.RequestTimeoutMs > 300*1000) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"request_timeout_ms must be between 0 and 300000")
	}

	if c.MaxConcurrentRequests < 0 || c.MaxConcurrentRequests > 1000 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_concurrent_requests must be between 0 and 1000")
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"rate_limit.requests_per_second must be positive when rate limiting is enabled")
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 0 || c.Metrics.Port > 65535) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("metrics.port out of range: %d", c.Metrics.Port))
	}

	return nil
}

// CacheTTL returns the cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMs) * time.Millisecond
}

// CacheSweepInterval returns the sweep interval as a duration.
func (c *Config) CacheSweepInterval() time.Duration {
	return time.Duration(c.CacheSweepIntervalMs) * time.Millisecond
}

// Retries returns the retry bound, falling back to the default when unset.
func (c *Config) Retries() int {
	if c.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *c.MaxRetries
}

// RetryDelay returns the base retry delay as a duration.
func (c *Config) RetryDelay() time.Duration {
	if c.RetryDelayMs == nil {
		return DefaultRetryDelayMs * time.Millisecond
	}
	return time.Duration(*c.RetryDelayMs) * time.Millisecond
}

// RequestTimeout returns the per-request timeout as a duration. Zero means
// no per-attempt deadline.
func (c *Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutMs == nil {
		return DefaultRequestTimeoutMs * time.Millisecond
	}
	return time.Duration(*c.RequestTimeoutMs) * time.Millisecond
}

// Int returns a pointer to v, for the optional integer fields.
func Int(v int) *int {
	return &v
}
