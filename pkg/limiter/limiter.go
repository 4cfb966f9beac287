// Package limiter provides a FIFO concurrency limiter for in-flight requests
package limiter

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/fetchkit/errors"
	"github.com/c360/fetchkit/metric"
)

// waiter represents one caller blocked on a slot. Its ready channel is closed
// exactly once, either with a granted slot or with err set.
type waiter struct {
	ready chan struct{}
	err   error
}

// Limiter caps the number of concurrently held slots. Callers beyond the
// limit wait in strict FIFO order: slots freed by Release are handed to the
// longest-waiting caller first.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	active  int
	waiters []*waiter
	closed  bool

	// Statistics (atomic)
	acquired int64
	queued   int64

	// Protected by mu
	peakActive  int
	peakWaiting int

	metrics *limiterMetrics
}

// Metrics holds Prometheus gauges for limiter monitoring
type limiterMetrics struct {
	active  prometheus.Gauge
	waiting prometheus.Gauge
	queued  prometheus.Counter
}

// Option represents a configuration option for the limiter
type Option func(*Limiter) error

// WithMetricsRegistry configures the limiter to register metrics with the framework's registry
func WithMetricsRegistry(registry *metric.MetricsRegistry, prefix string) Option {
	return func(l *Limiter) error {
		if registry == nil || prefix == "" {
			return nil
		}

		m := &limiterMetrics{
			active: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace:   "fetchkit",
				Subsystem:   "limiter",
				Name:        "active",
				ConstLabels: prometheus.Labels{"component": prefix},
				Help:        "Slots currently held",
			}),
			waiting: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace:   "fetchkit",
				Subsystem:   "limiter",
				Name:        "waiting",
				ConstLabels: prometheus.Labels{"component": prefix},
				Help:        "Callers waiting for a slot",
			}),
			queued: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace:   "fetchkit",
				Subsystem:   "limiter",
				Name:        "queued_total",
				ConstLabels: prometheus.Labels{"component": prefix},
				Help:        "Total callers that had to wait for a slot",
			}),
		}

		if err := registry.RegisterGauge(prefix, "limiter_active", m.active); err != nil {
			return err
		}
		if err := registry.RegisterGauge(prefix, "limiter_waiting", m.waiting); err != nil {
			return err
		}
		if err := registry.RegisterCounter(prefix, "limiter_queued", m.queued); err != nil {
			return err
		}

		l.metrics = m
		return nil
	}
}

// New creates a limiter with the given concurrency limit.
func New(limit int, opts ...Option) (*Limiter, error) {
	if limit <= 0 {
		limit = 5 // Default concurrency limit
	}

	l := &Limiter{limit: limit}

	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}

	return l, nil
}

// Acquire blocks until a slot is free, the context is cancelled, or the
// limiter is closed. Callers are served in FIFO order.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return errors.ErrQueueClosed
	}

	if l.active < l.limit && len(l.waiters) == 0 {
		l.grantLocked()
		l.mu.Unlock()
		return nil
	}

	// No free slot - join the FIFO queue
	w := &waiter{ready: make(chan struct{})}
	l.waiters = append(l.waiters, w)
	atomic.AddInt64(&l.queued, 1)
	if len(l.waiters) > l.peakWaiting {
		l.peakWaiting = len(l.waiters)
	}
	if l.metrics != nil {
		l.metrics.queued.Inc()
		l.metrics.waiting.Set(float64(len(l.waiters)))
	}
	l.mu.Unlock()

	select {
	case <-w.ready:
		// Slot granted by Release, or limiter closed
		return w.err
	case <-ctx.Done():
		l.mu.Lock()
		for i, queued := range l.waiters {
			if queued == w {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				if l.metrics != nil {
					l.metrics.waiting.Set(float64(len(l.waiters)))
				}
				l.mu.Unlock()
				return ctx.Err()
			}
		}
		l.mu.Unlock()

		// Lost the race: a slot was granted between cancellation and
		// dequeue. Take it and give it straight back.
		<-w.ready
		if w.err == nil {
			l.Release()
		}
		return ctx.Err()
	}
}

// Release frees a slot and hands it to the longest-waiting caller, if any.
func (l *Limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active == 0 {
		return
	}
	l.active--

	if len(l.waiters) > 0 {
		w := l.waiters[0]
		l.waiters = l.waiters[1:]
		l.grantLocked()
		if l.metrics != nil {
			l.metrics.waiting.Set(float64(len(l.waiters)))
		}
		close(w.ready)
	} else if l.metrics != nil {
		l.metrics.active.Set(float64(l.active))
	}
}

// grantLocked hands out a slot. Caller must hold mu.
func (l *Limiter) grantLocked() {
	l.active++
	atomic.AddInt64(&l.acquired, 1)
	if l.active > l.peakActive {
		l.peakActive = l.active
	}
	if l.metrics != nil {
		l.metrics.active.Set(float64(l.active))
	}
}

// Close fails the limiter: all waiting callers are released with
// ErrQueueClosed and subsequent Acquire calls fail immediately.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true

	for _, w := range l.waiters {
		w.err = errors.ErrQueueClosed
		close(w.ready)
	}
	l.waiters = nil
	if l.metrics != nil {
		l.metrics.waiting.Set(0)
	}
}

// Stats represents limiter statistics
type Stats struct {
	Limit       int   `json:"limit"`
	Active      int   `json:"active"`
	Waiting     int   `json:"waiting"`
	Acquired    int64 `json:"acquired"`
	Queued      int64 `json:"queued"`
	PeakActive  int   `json:"peak_active"`
	PeakWaiting int   `json:"peak_waiting"`
}

// Stats returns current limiter statistics
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Stats{
		Limit:       l.limit,
		Active:      l.active,
		Waiting:     len(l.waiters),
		Acquired:    atomic.LoadInt64(&l.acquired),
		Queued:      atomic.LoadInt64(&l.queued),
		PeakActive:  l.peakActive,
		PeakWaiting: l.peakWaiting,
	}
}

// Active returns the number of slots currently held.
func (l *Limiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}
