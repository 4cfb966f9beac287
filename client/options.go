package client

import (
	"log/slog"

	"github.com/c360/fetchkit/metric"
)

// Option configures optional client dependencies.
type Option func(*clientOptions)

type clientOptions struct {
	doer     Doer
	logger   *slog.Logger
	registry *metric.MetricsRegistry
}

// WithDoer injects the HTTP transport. Defaults to an *http.Client built
// from the TLS configuration.
func WithDoer(doer Doer) Option {
	return func(o *clientOptions) {
		o.doer = doer
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithMetricsRegistry attaches Prometheus instrumentation for requests,
// the cache, and the concurrency limiter.
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(o *clientOptions) {
		o.registry = registry
	}
}

func applyOptions(opts ...Option) *clientOptions {
	options := &clientOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
