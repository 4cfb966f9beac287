// Package client implements a resilient HTTP JSON client with response
// caching, bounded retries, and FIFO concurrency limiting. Responses from
// GET requests are cached in memory with a TTL; transient failures (network,
// timeout, HTTP 5xx) are retried with linear backoff; 4xx and malformed
// JSON responses fail immediately with a classified error.
package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/c360/fetchkit/config"
	"github.com/c360/fetchkit/errors"
	"github.com/c360/fetchkit/health"
	"github.com/c360/fetchkit/metric"
	"github.com/c360/fetchkit/pkg/cache"
	"github.com/c360/fetchkit/pkg/limiter"
	"github.com/c360/fetchkit/pkg/tlsutil"
)

// Doer executes a single HTTP request. *http.Client satisfies it; tests
// inject fakes.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// maxResponseBytes caps how much of a response body is read into memory.
const maxResponseBytes = 32 << 20 // 32 MiB

// Client is a configured fetch client. All methods are safe for concurrent
// use. Create with New and release resources with Close.
type Client struct {
	baseURL *url.URL
	headers map[string]string
	timeout time.Duration
	policy  errors.RetryPolicy

	doer    Doer
	cache   *cache.TTLCache[json.RawMessage]
	limiter *limiter.Limiter
	group   singleflight.Group
	rate    *rate.Limiter // nil when rate limiting is disabled
	logger  *slog.Logger
	metrics *metric.Metrics // nil when no registry is attached

	// Performance counters
	totalRequests      atomic.Int64
	successfulRequests atomic.Int64
	failedRequests     atomic.Int64
	cacheHits          atomic.Int64
	activeRequests     atomic.Int64

	startTime time.Time
	cancel    context.CancelFunc
	closed    atomic.Bool
}

// New creates a client from configuration. The configuration is validated;
// zero-valued fields take their defaults first.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "New", "nil config")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Client", "New", "parse base_url")
	}

	options := applyOptions(opts...)

	logger := options.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "client")

	ctx, cancel := context.WithCancel(context.Background())

	var cacheOpts []cache.Option[json.RawMessage]
	if options.registry != nil {
		cacheOpts = append(cacheOpts, cache.WithMetrics[json.RawMessage](options.registry, "client"))
	}
	responseCache, err := cache.NewTTL[json.RawMessage](
		ctx, cfg.CacheTTL(), cfg.CacheSweepInterval(), cacheOpts...)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "Client", "New", "create response cache")
	}

	var limiterOpts []limiter.Option
	if options.registry != nil {
		limiterOpts = append(limiterOpts, limiter.WithMetricsRegistry(options.registry, "client"))
	}
	slots, err := limiter.New(cfg.MaxConcurrentRequests, limiterOpts...)
	if err != nil {
		cancel()
		_ = responseCache.Close()
		return nil, errors.Wrap(err, "Client", "New", "create concurrency limiter")
	}

	doer := options.doer
	if doer == nil {
		doer, err = defaultDoer(cfg)
		if err != nil {
			cancel()
			_ = responseCache.Close()
			slots.Close()
			return nil, err
		}
	}

	var rl *rate.Limiter
	if cfg.RateLimit.Enabled {
		rl = rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
	}

	var coreMetrics *metric.Metrics
	if options.registry != nil {
		coreMetrics = options.registry.CoreMetrics()
	}

	policy := errors.RetryPolicy{MaxRetries: cfg.Retries(), Delay: cfg.RetryDelay(), MaxDelay: 30 * time.Second}
	if policy.Delay > policy.MaxDelay {
		policy.MaxDelay = policy.Delay
	}

	c := &Client{
		baseURL:   baseURL,
		headers:   cfg.Headers,
		timeout:   cfg.RequestTimeout(),
		policy:    policy,
		doer:      doer,
		cache:     responseCache,
		limiter:   slots,
		rate:      rl,
		logger:    logger,
		metrics:   coreMetrics,
		startTime: time.Now(),
		cancel:    cancel,
	}

	logger.Info("client created",
		"base_url", cfg.BaseURL,
		"cache_ttl", cfg.CacheTTL(),
		"max_retries", cfg.Retries(),
		"max_concurrent", cfg.MaxConcurrentRequests)

	return c, nil
}

// defaultDoer builds the production http.Client, wiring TLS settings from
// configuration. The request timeout is enforced per attempt via context,
// not on the http.Client itself.
func defaultDoer(cfg *config.Config) (Doer, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.TLS.Client.IsZero() {
		tlsConfig, err := tlsutil.LoadClientTLSConfig(cfg.TLS.Client)
		if err != nil {
			return nil, errors.Wrap(err, "Client", "New", "load TLS config")
		}
		transport.TLSClientConfig = tlsConfig
	}
	return &http.Client{Transport: transport}, nil
}

// ClearCache removes all cached responses. In-flight requests are not
// affected; they repopulate the cache on completion.
func (c *Client) ClearCache() error {
	if c.closed.Load() {
		return errors.ErrClientClosed
	}
	if err := c.cache.Clear(); err != nil {
		return errors.Wrap(err, "Client", "ClearCache", "clear cache")
	}
	c.logger.Debug("cache cleared")
	return nil
}

// CacheStats returns the response cache statistics summary.
func (c *Client) CacheStats() cache.StatsSummary {
	return c.cache.Stats().Summary()
}

// Health reports the client's health based on recent failure ratio.
func (c *Client) Health() health.Status {
	if c.closed.Load() {
		return health.NewUnhealthy("client", "client closed")
	}

	total := c.totalRequests.Load()
	failed := c.failedRequests.Load()

	status := health.NewHealthy("client", "operational")
	if total > 10 && failed*2 > total {
		status = health.NewDegraded("client", "failure rate above 50%")
	}

	return status.WithMetrics(&health.Metrics{
		Uptime:       time.Since(c.startTime),
		ErrorCount:   int(failed),
		RequestCount: total,
		LastActivity: time.Now(),
	})
}

// Close releases the cache sweeper and fails any queued requests. Close is
// idempotent; fetches after Close return ErrClientClosed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.limiter.Close()
	c.cancel()
	err := c.cache.Close()

	c.logger.Info("client closed",
		"total_requests", c.totalRequests.Load(),
		"cache_hits", c.cacheHits.Load())

	return err
}
