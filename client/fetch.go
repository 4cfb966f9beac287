package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360/fetchkit/errors"
	"github.com/c360/fetchkit/pkg/retry"
)

// RequestOptions customizes a single fetch. A nil *RequestOptions means a
// plain GET with the client's configured headers.
type RequestOptions struct {
	// Method defaults to GET. Only GET responses are cached.
	Method string
	// Headers are merged over the client's configured headers.
	Headers map[string]string
	// Query parameters appended to the endpoint.
	Query url.Values
	// Body for non-GET requests.
	Body []byte
	// NoCache bypasses the response cache for this request.
	NoCache bool

	// Timeout overrides the client's per-attempt timeout. Zero keeps the
	// configured value.
	Timeout time.Duration
	// MaxRetries overrides the client's retry bound for this request.
	// nil keeps the configured value; 0 disables retries.
	MaxRetries *int
	// RetryDelay overrides the base backoff delay. Zero keeps the
	// configured value.
	RetryDelay time.Duration
}

// retryPolicy merges per-request overrides onto the client policy.
func (c *Client) retryPolicy(opts *RequestOptions) errors.RetryPolicy {
	policy := c.policy
	if opts == nil {
		return policy
	}
	if opts.MaxRetries != nil {
		policy.MaxRetries = *opts.MaxRetries
	}
	if opts.RetryDelay > 0 {
		policy.Delay = opts.RetryDelay
	}
	if policy.Delay > policy.MaxDelay {
		policy.MaxDelay = policy.Delay
	}
	return policy
}

// attemptTimeout returns the per-attempt deadline for the request.
func (c *Client) attemptTimeout(opts *RequestOptions) time.Duration {
	if opts != nil && opts.Timeout > 0 {
		return opts.Timeout
	}
	return c.timeout
}

func (o *RequestOptions) method() string {
	if o == nil || o.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(o.Method)
}

// FetchJSON performs an HTTP request against the configured base URL and
// returns the validated JSON response body.
//
// GET responses are served from the in-memory cache when a fresh entry
// exists; concurrent identical GETs share a single network call. Cache
// misses acquire a concurrency slot (FIFO beyond the configured limit),
// then execute with per-attempt timeout and linear-backoff retries.
// Failures return a classified *errors.RequestError.
func (c *Client) FetchJSON(ctx context.Context, endpoint string, opts *RequestOptions) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, errors.ErrClientClosed
	}
	if endpoint == "" {
		return nil, errors.WrapInvalid(errors.ErrEmptyEndpoint, "Client", "FetchJSON", "validate endpoint")
	}

	c.totalRequests.Add(1)

	target, err := c.resolveURL(endpoint, opts)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Client", "FetchJSON", "resolve endpoint")
	}

	method := opts.method()
	cacheable := method == http.MethodGet && (opts == nil || !opts.NoCache)
	key := requestKey(method, target, opts)

	if cacheable {
		if body, ok := c.cache.Get(key); ok {
			c.cacheHits.Add(1)
			c.logger.Debug("cache hit", "endpoint", endpoint)
			return body, nil
		}
	}

	requestID := uuid.NewString()

	var body json.RawMessage
	if cacheable {
		// Concurrent identical GETs collapse into one network call.
		result, fetchErr, _ := c.group.Do(key, func() (any, error) {
			return c.fetchWithRetry(ctx, requestID, method, target, endpoint, opts)
		})
		if fetchErr != nil {
			err = fetchErr
		} else {
			body = result.(json.RawMessage)
		}
	} else {
		body, err = c.fetchWithRetry(ctx, requestID, method, target, endpoint, opts)
	}

	if err != nil {
		c.failedRequests.Add(1)
		if c.metrics != nil {
			c.metrics.RecordError(errors.CategoryOf(err).String())
		}
		return nil, err
	}

	c.successfulRequests.Add(1)
	if cacheable {
		if _, setErr := c.cache.Set(key, body); setErr != nil {
			c.logger.Warn("cache store failed", "endpoint", endpoint, "error", setErr)
		}
	}
	return body, nil
}

// FetchAs fetches an endpoint and decodes the JSON response into T.
func FetchAs[T any](ctx context.Context, c *Client, endpoint string, opts *RequestOptions) (T, error) {
	var out T
	body, err := c.FetchJSON(ctx, endpoint, opts)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, errors.WrapParse(err, endpoint)
	}
	return out, nil
}

// fetchWithRetry executes the request under a concurrency slot with bounded
// linear-backoff retries. Only network, timeout and 5xx failures retry.
func (c *Client) fetchWithRetry(
	ctx context.Context, requestID, method string, target *url.URL, endpoint string, opts *RequestOptions,
) (json.RawMessage, error) {
	err := c.limiter.Acquire(ctx)
	if c.metrics != nil {
		c.metrics.SetQueued(c.limiter.Stats().Waiting)
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		c.limiter.Release()
		if c.metrics != nil {
			c.metrics.SetQueued(c.limiter.Stats().Waiting)
		}
	}()

	active := c.activeRequests.Add(1)
	if c.metrics != nil {
		c.metrics.SetInFlight(int(active))
	}
	defer func() {
		remaining := c.activeRequests.Add(-1)
		if c.metrics != nil {
			c.metrics.SetInFlight(int(remaining))
		}
	}()

	start := time.Now()
	attempts := 0
	timeout := c.attemptTimeout(opts)

	body, err := retry.DoWithResult(ctx, c.retryPolicy(opts).ToRetryConfig(), func() (json.RawMessage, error) {
		attempts++
		if attempts > 1 {
			if c.metrics != nil {
				c.metrics.RecordRetry()
			}
			c.logger.Debug("retrying request",
				"request_id", requestID, "endpoint", endpoint, "attempt", attempts)
		}
		return c.doAttempt(ctx, method, target, opts, timeout)
	})

	duration := time.Since(start)
	if c.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		c.metrics.RecordRequest(method, outcome, duration)
	}

	if err != nil {
		if re, ok := errors.AsRequestError(err); ok {
			re.Duration = duration
			re.Attempts = attempts
			err = re
		}
		c.logger.Warn("request failed",
			"request_id", requestID,
			"endpoint", endpoint,
			"category", errors.CategoryOf(err).String(),
			"attempts", attempts,
			"duration", duration,
			"error", err)
		return nil, err
	}

	c.logger.Debug("request succeeded",
		"request_id", requestID, "endpoint", endpoint, "attempts", attempts, "duration", duration)
	return body, nil
}

// doAttempt performs one HTTP round trip with the per-attempt timeout and
// classifies any failure.
func (c *Client) doAttempt(
	ctx context.Context, method string, target *url.URL, opts *RequestOptions, timeout time.Duration,
) (json.RawMessage, error) {
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if c.rate != nil {
		if err := c.rate.Wait(attemptCtx); err != nil {
			return nil, c.classifyTransport(ctx, err, target)
		}
		if c.metrics != nil {
			c.metrics.RecordRateLimitWait()
		}
	}

	var reqBody io.Reader
	if opts != nil && len(opts.Body) > 0 {
		reqBody = bytes.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, target.String(), reqBody)
	if err != nil {
		return nil, retry.NonRetryable(errors.Wrap(err, "Client", "FetchJSON", "build request"))
	}

	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if opts != nil {
		for k, v := range opts.Headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, c.classifyTransport(ctx, err, target)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		statusErr := errors.WrapStatus(target.Path, resp.StatusCode, resp.Status)
		if !errors.IsRetryable(statusErr) {
			return nil, retry.NonRetryable(statusErr)
		}
		return nil, statusErr
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.classifyTransport(ctx, err, target)
	}

	if !json.Valid(data) {
		return nil, retry.NonRetryable(errors.WrapParse(errors.ErrInvalidData, target.Path))
	}

	return json.RawMessage(data), nil
}

// classifyTransport maps a transport-level failure to its category. A
// deadline hit on the per-attempt context is a timeout; a cancellation of
// the caller's context passes through so the retry loop stops.
func (c *Client) classifyTransport(callerCtx context.Context, err error, target *url.URL) error {
	if callerCtx.Err() != nil {
		return err
	}
	if isTimeout(err) {
		return errors.WrapTimeout(err, target.Path)
	}
	return errors.WrapNetwork(err, target.Path)
}

func isTimeout(err error) bool {
	if errors.CategoryOf(err) == errors.CategoryTimeout {
		return true
	}
	return strings.Contains(err.Error(), "deadline exceeded")
}

// resolveURL joins the endpoint with the base URL and appends query
// parameters. Absolute endpoint URLs are rejected when they point at a
// different host.
func (c *Client) resolveURL(endpoint string, opts *RequestOptions) (*url.URL, error) {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	if ref.IsAbs() && ref.Host != c.baseURL.Host {
		return nil, fmt.Errorf("endpoint host %q does not match base URL host %q", ref.Host, c.baseURL.Host)
	}

	target := c.baseURL.ResolveReference(ref)

	if opts != nil && len(opts.Query) > 0 {
		q := target.Query()
		for k, vs := range opts.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}

	return target, nil
}

// requestKey builds the cache and de-duplication key: method, resolved URL
// with sorted query, and a canonical rendering of per-request headers.
func requestKey(method string, target *url.URL, opts *RequestOptions) string {
	u := *target
	u.RawQuery = u.Query().Encode() // sorted

	var b strings.Builder
	b.WriteString(method)
	b.WriteByte(' ')
	b.WriteString(u.String())

	if opts != nil && len(opts.Headers) > 0 {
		keys := make([]string, 0, len(opts.Headers))
		for k := range opts.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte('\n')
			b.WriteString(http.CanonicalHeaderKey(k))
			b.WriteByte(':')
			b.WriteString(opts.Headers[k])
		}
	}

	return b.String()
}
