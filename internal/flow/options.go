package flow

import (
	"log/slog"
	"time"

	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/metrics"
)

// Option configures the flow
type Option func(*Flow)

// WithContextKey binds the flow to a tenant context key
func WithContextKey(key string) Option {
	return func(f *Flow) {
		if key != "" {
			f.contextKey = key
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger.With("component", "flow")
		}
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(c metrics.Collector) Option {
	return func(f *Flow) {
		if c != nil {
			f.metrics = c
		}
	}
}

// WithClock sets the time source used to compute token expiry
func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		if now != nil {
			f.now = now
		}
	}
}
