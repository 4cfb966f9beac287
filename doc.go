// Package fetchkit provides a resilient HTTP JSON client with response
// caching, bounded retries, and concurrency limiting.
//
// # Architecture
//
// FetchKit is organized as a small set of focused packages wired together
// by the client:
//
//	┌─────────────────────────────────────┐
//	│            client                   │  FetchJSON, FetchAs,
//	│  (cache check, retry, limiting)     │  Stats, Health, Close
//	└─────────────────────────────────────┘
//	           ↓ builds on
//	┌──────────┬──────────┬───────────────┐
//	│ pkg/cache│ pkg/retry│  pkg/limiter  │  TTL cache, backoff,
//	│          │          │               │  FIFO slot queue
//	└──────────┴──────────┴───────────────┘
//	           ↓ reports through
//	┌─────────────────────────────────────┐
//	│        metric / health              │  Prometheus registry,
//	│                                     │  /metrics, /health
//	└─────────────────────────────────────┘
//
// Request flow for a GET:
//
//  1. Fresh cache entry: returned immediately, no network call.
//  2. Cache miss: identical in-flight GETs collapse into a single call,
//     then a concurrency slot is acquired (FIFO beyond the limit).
//  3. The request executes with a per-attempt timeout. Network failures,
//     timeouts, and HTTP 5xx retry with linear backoff up to the
//     configured bound; 4xx and malformed JSON fail immediately.
//  4. Valid JSON responses are cached for the configured TTL.
//
// Every failure surfaces as a classified *errors.RequestError carrying
// the category (network, timeout, server_error, client_error,
// parse_error), the endpoint, the total duration, and the attempt count.
//
// # Framework Packages
//
// Core:
//   - client: the fetch client itself
//   - config: JSON/YAML configuration with schema validation
//   - errors: failure classification and wrapping helpers
//
// Infrastructure:
//   - pkg/cache: generic TTL cache with lazy expiry and background sweep
//   - pkg/retry: bounded backoff retry
//   - pkg/limiter: FIFO concurrency limiter
//   - pkg/tlsutil: TLS configuration loading
//   - metric: Prometheus metrics registry and HTTP server
//   - health: health status reporting
//
// # Usage
//
// Basic fetch:
//
//	cfg := config.DefaultConfig()
//	cfg.BaseURL = "https://api.example.com"
//
//	c, err := client.New(cfg)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	body, err := c.FetchJSON(ctx, "/api/summary", nil)
//
// Typed decode:
//
//	summary, err := client.FetchAs[Summary](ctx, c, "/api/summary", nil)
//
// # Binary
//
// The fetchkit command fetches endpoints from the command line:
//
//	fetchkit --config=config.json /api/summary /api/users
//
// Responses print to stdout as JSON, one object per endpoint; logs go to
// stderr.
package fetchkit
