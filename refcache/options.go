package refcache

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Option configures the components of this package.
type Option func(*options)

type options struct {
	logger         *slog.Logger
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	coalesce       bool
}

func buildOptions(opts []Option) options {
	o := options{coalesce: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.meterProvider == nil {
		o.meterProvider = otel.GetMeterProvider()
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	return o
}

// WithLogger sets the structured logger. Logs are discarded by default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMeterProvider sets where metrics are reported. Defaults to the otel global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithTracerProvider sets where spans are reported. Defaults to the otel global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithCoalescing controls whether a Hydrator joins batches already in flight
// for the same ids. Enabled by default. Disabled, two overlapping concurrent
// hydrations each fetch the ids they are missing.
func WithCoalescing(enabled bool) Option {
	return func(o *options) {
		o.coalesce = enabled
	}
}

// CallOption tunes a single FetchIndex, GetPage or GetSlice call.
type CallOption func(*callConfig)

type callConfig struct {
	force  bool
	fields []string
}

func buildCallConfig(opts []CallOption) callConfig {
	var c callConfig
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithForce bypasses memoized data: the index is re-fetched and overwrites the
// memo, and page documents are re-fetched and merged over cached entries.
func WithForce() CallOption {
	return func(c *callConfig) {
		c.force = true
	}
}

// WithFields limits hydration to the named fields. Cached entries that already
// hold them are not re-fetched; returned entities still carry every cached field.
func WithFields(fields ...string) CallOption {
	return func(c *callConfig) {
		c.fields = append(c.fields, fields...)
	}
}
