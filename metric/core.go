package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all client-level metrics (not component-specific)
type Metrics struct {
	// Request lifecycle metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec

	// Concurrency metrics
	InFlightRequests prometheus.Gauge
	QueuedRequests   prometheus.Gauge
	RateLimitWaits   prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all client metrics
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fetchkit",
				Subsystem: "requests",
				Name:      "total",
				Help:      "Total number of fetch requests by method and outcome",
			},
			[]string{"method", "status"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fetchkit",
				Subsystem: "requests",
				Name:      "duration_seconds",
				Help:      "Fetch request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "status"},
		),

		RetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fetchkit",
				Subsystem: "requests",
				Name:      "retries_total",
				Help:      "Total number of retry attempts",
			},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fetchkit",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of fetch failures by category",
			},
			[]string{"category"},
		),

		InFlightRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "fetchkit",
				Subsystem: "requests",
				Name:      "in_flight",
				Help:      "Number of requests currently in flight",
			},
		),

		QueuedRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "fetchkit",
				Subsystem: "requests",
				Name:      "queued",
				Help:      "Number of requests waiting for a concurrency slot",
			},
		),

		RateLimitWaits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fetchkit",
				Subsystem: "requests",
				Name:      "rate_limit_waits_total",
				Help:      "Total number of requests delayed by the rate limiter",
			},
		),
	}
}

// RecordRequest increments the request counter and records its duration
func (m *Metrics) RecordRequest(method, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, status).Inc()
	m.RequestDuration.WithLabelValues(method, status).Observe(duration.Seconds())
}

// RecordRetry increments the retry counter
func (m *Metrics) RecordRetry() {
	m.RetriesTotal.Inc()
}

// RecordError increments the error counter for a failure category
func (m *Metrics) RecordError(category string) {
	m.ErrorsTotal.WithLabelValues(category).Inc()
}

// SetInFlight updates the in-flight request gauge
func (m *Metrics) SetInFlight(n int) {
	m.InFlightRequests.Set(float64(n))
}

// SetQueued updates the queued request gauge
func (m *Metrics) SetQueued(n int) {
	m.QueuedRequests.Set(float64(n))
}

// RecordRateLimitWait increments the rate limiter wait counter
func (m *Metrics) RecordRateLimitWait() {
	m.RateLimitWaits.Inc()
}
