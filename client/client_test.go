package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fetchkit/config"
	"github.com/c360/fetchkit/errors"
	"github.com/c360/fetchkit/metric"
)

func testConfig(baseURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.RetryDelayMs = config.Int(1) // keep test backoff short
	return cfg
}

func newTestClient(t *testing.T, cfg *config.Config, opts ...Option) *Client {
	t.Helper()
	opts = append(opts, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	c, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_FetchJSON_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/summary", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"total": 42, "status": "ok"}`))
	}))
	defer server.Close()

	c := newTestClient(t, testConfig(server.URL))

	body, err := c.FetchJSON(context.Background(), "/api/summary", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total": 42, "status": "ok"}`, string(body))

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.SuccessfulRequests)
	assert.Equal(t, int64(0), stats.FailedRequests)
}

func TestClient_FetchJSON_CacheHit(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"value": 1}`))
	}))
	defer server.Close()

	c := newTestClient(t, testConfig(server.URL))

	first, err := c.FetchJSON(context.Background(), "/api/data", nil)
	require.NoError(t, err)

	second, err := c.FetchJSON(context.Background(), "/api/data", nil)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	assert.Equal(t, int64(1), hits.Load(), "second fetch should come from cache")
	assert.Equal(t, int64(1), c.Stats().CacheHits)
}

func TestClient_FetchJSON_CacheExpiry(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"value": 1}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.CacheTTLMs = 30
	c := newTestClient(t, cfg)

	_, err := c.FetchJSON(context.Background(), "/api/data", nil)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	_, err = c.FetchJSON(context.Background(), "/api/data", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), hits.Load(), "expired entry must not be served")
}

func TestClient_FetchJSON_NoCacheOption(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"value": 1}`))
	}))
	defer server.Close()

	c := newTestClient(t, testConfig(server.URL))

	for i := 0; i < 3; i++ {
		_, err := c.FetchJSON(context.Background(), "/api/data", &RequestOptions{NoCache: true})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), hits.Load())
}

func TestClient_FetchJSON_RetriesServerError(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"recovered": true}`))
	}))
	defer server.Close()

	c := newTestClient(t, testConfig(server.URL))

	body, err := c.FetchJSON(context.Background(), "/api/flaky", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"recovered": true}`, string(body))
	assert.Equal(t, int64(3), calls.Load())
}

func TestClient_FetchJSON_RetryBound(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "broken", http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.MaxRetries = config.Int(2)
	c := newTestClient(t, cfg)

	_, err := c.FetchJSON(context.Background(), "/api/broken", nil)
	require.Error(t, err)

	re, ok := errors.AsRequestError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CategoryServerError, re.Category)
	assert.Equal(t, http.StatusInternalServerError, re.StatusCode)
	assert.Equal(t, 3, re.Attempts, "maxRetries=2 means exactly 3 attempts")
	assert.Equal(t, int64(3), calls.Load())
	assert.Equal(t, int64(1), c.Stats().FailedRequests)
}

func TestClient_FetchJSON_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "not here", http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient(t, testConfig(server.URL))

	_, err := c.FetchJSON(context.Background(), "/api/missing", nil)
	require.Error(t, err)

	re, ok := errors.AsRequestError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CategoryClientError, re.Category)
	assert.Equal(t, http.StatusNotFound, re.StatusCode)
	assert.Equal(t, 1, re.Attempts)
	assert.Equal(t, int64(1), calls.Load(), "4xx must not retry")
}

func TestClient_FetchJSON_NoRetryOnParseError(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))
	defer server.Close()

	c := newTestClient(t, testConfig(server.URL))

	_, err := c.FetchJSON(context.Background(), "/api/html", nil)
	require.Error(t, err)

	re, ok := errors.AsRequestError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CategoryParseError, re.Category)
	assert.Equal(t, int64(1), calls.Load(), "malformed JSON must not retry")
}

func TestClient_FetchJSON_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()
	defer close(release)

	cfg := testConfig(server.URL)
	cfg.RequestTimeoutMs = config.Int(30)
	c := newTestClient(t, cfg)

	_, err := c.FetchJSON(context.Background(), "/api/slow", nil)
	require.Error(t, err)
	assert.Equal(t, errors.CategoryTimeout, errors.CategoryOf(err))
}

func TestClient_FetchJSON_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	server.Close() // connection refused from here on

	cfg := testConfig(server.URL)
	cfg.MaxRetries = config.Int(1)
	c := newTestClient(t, cfg)

	_, err := c.FetchJSON(context.Background(), "/api/data", nil)
	require.Error(t, err)
	assert.Equal(t, errors.CategoryNetwork, errors.CategoryOf(err))
}

func TestClient_ZeroRetriesConfig(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "broken", http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.MaxRetries = config.Int(0)
	c := newTestClient(t, cfg)

	_, err := c.FetchJSON(context.Background(), "/api/broken", nil)
	require.Error(t, err)

	re, ok := errors.AsRequestError(err)
	require.True(t, ok)
	assert.Equal(t, 1, re.Attempts, "max_retries=0 means exactly one attempt")
	assert.Equal(t, int64(1), calls.Load())
}

func TestClient_PerRequestRetryOverride(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "broken", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(t, testConfig(server.URL)) // client default: 2 retries

	zero := 0
	_, err := c.FetchJSON(context.Background(), "/api/broken", &RequestOptions{
		NoCache:    true,
		MaxRetries: &zero,
	})
	require.Error(t, err)
	assert.Equal(t, int64(1), calls.Load(), "per-request override must win over the client bound")

	calls.Store(0)
	three := 3
	_, err = c.FetchJSON(context.Background(), "/api/broken", &RequestOptions{
		NoCache:    true,
		MaxRetries: &three,
		RetryDelay: time.Millisecond,
	})
	require.Error(t, err)
	assert.Equal(t, int64(4), calls.Load())
}

func TestClient_PerRequestTimeoutOverride(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()
	defer close(release)

	// Client default timeout is 30s; the per-request override must apply.
	c := newTestClient(t, testConfig(server.URL))

	zero := 0
	start := time.Now()
	_, err := c.FetchJSON(context.Background(), "/api/slow", &RequestOptions{
		Timeout:    20 * time.Millisecond,
		MaxRetries: &zero,
	})
	require.Error(t, err)
	assert.Equal(t, errors.CategoryTimeout, errors.CategoryOf(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestClient_MetricsRecorded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	registry := metric.NewMetricsRegistry()
	c := newTestClient(t, testConfig(server.URL), WithMetricsRegistry(registry))

	_, err := c.FetchJSON(context.Background(), "/api/data", nil)
	require.NoError(t, err)

	core := registry.CoreMetrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(core.RequestsTotal.WithLabelValues("GET", "success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(core.InFlightRequests))
	assert.Equal(t, 0.0, testutil.ToFloat64(core.QueuedRequests),
		"queue gauge reflects limiter depth after completion")
}

func TestClient_ConcurrencyCeiling(t *testing.T) {
	var inFlight, peak atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.MaxConcurrentRequests = 3
	c := newTestClient(t, cfg)

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// Distinct endpoints so requests are not de-duplicated.
			_, err := c.FetchJSON(context.Background(), "/api/data", &RequestOptions{
				Query:   map[string][]string{"n": {string(rune('a' + n))}},
				NoCache: true,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(3))
}

func TestClient_SingleflightDeduplicatesGETs(t *testing.T) {
	var calls atomic.Int64
	started := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		_, _ = w.Write([]byte(`{"shared": true}`))
	}))
	defer server.Close()

	c := newTestClient(t, testConfig(server.URL))

	var wg sync.WaitGroup
	results := make([]json.RawMessage, 5)
	wg.Add(1)
	go func() {
		defer wg.Done()
		body, err := c.FetchJSON(context.Background(), "/api/shared", nil)
		assert.NoError(t, err)
		results[0] = body
	}()

	<-started
	for i := 1; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body, err := c.FetchJSON(context.Background(), "/api/shared", nil)
			assert.NoError(t, err)
			results[i] = body
		}(i)
	}

	// Give the followers time to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load(), "identical concurrent GETs share one network call")
	for _, body := range results {
		assert.JSONEq(t, `{"shared": true}`, string(body))
	}
}

func TestClient_ClearCache(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"value": 1}`))
	}))
	defer server.Close()

	c := newTestClient(t, testConfig(server.URL))

	_, err := c.FetchJSON(context.Background(), "/api/data", nil)
	require.NoError(t, err)
	require.NoError(t, c.ClearCache())

	_, err = c.FetchJSON(context.Background(), "/api/data", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), hits.Load())
}

func TestClient_Close(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := newTestClient(t, testConfig(server.URL))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close()) // idempotent

	_, err := c.FetchJSON(context.Background(), "/api/data", nil)
	assert.ErrorIs(t, err, errors.ErrClientClosed)
	assert.True(t, c.Health().IsUnhealthy())
}

func TestClient_EmptyEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := newTestClient(t, testConfig(server.URL))

	_, err := c.FetchJSON(context.Background(), "", nil)
	assert.ErrorIs(t, err, errors.ErrEmptyEndpoint)
}

func TestClient_New_InvalidConfig(t *testing.T) {
	_, err := New(testConfig(""))
	assert.Error(t, err)

	_, err = New(nil)
	assert.Error(t, err)
}

func TestClient_Health(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := newTestClient(t, testConfig(server.URL))

	status := c.Health()
	assert.True(t, status.IsHealthy())
	require.NotNil(t, status.Metrics)
}

func TestFetchAs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"total": 7, "status": "ok"}`))
	}))
	defer server.Close()

	c := newTestClient(t, testConfig(server.URL))

	type summary struct {
		Total  int    `json:"total"`
		Status string `json:"status"`
	}

	got, err := FetchAs[summary](context.Background(), c, "/api/summary", nil)
	require.NoError(t, err)
	assert.Equal(t, summary{Total: 7, Status: "ok"}, got)
}

func TestRequestKey_Canonical(t *testing.T) {
	cfg := testConfig("http://localhost:8080")
	c := newTestClient(t, cfg, WithDoer(http.DefaultClient))

	a, err := c.resolveURL("/api/data", &RequestOptions{Query: map[string][]string{"b": {"2"}, "a": {"1"}}})
	require.NoError(t, err)
	b, err := c.resolveURL("/api/data?a=1&b=2", nil)
	require.NoError(t, err)

	keyA := requestKey(http.MethodGet, a, nil)
	keyB := requestKey(http.MethodGet, b, nil)
	assert.Equal(t, keyA, keyB, "query parameter order must not change the key")

	withHeader := requestKey(http.MethodGet, a, &RequestOptions{Headers: map[string]string{"X-Tenant": "acme"}})
	assert.NotEqual(t, keyA, withHeader)
}
