package refcache

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/goliatone/go-refcache/refcache"

// Attribute keys shared by spans and metrics.
const (
	attrCollection = attribute.Key("refcache.collection")
	attrSource     = attribute.Key("refcache.source")
)

type telemetry struct {
	tracer trace.Tracer

	hits         metric.Int64Counter
	misses       metric.Int64Counter
	coalesced    metric.Int64Counter
	batches      metric.Int64Counter
	indexFetches metric.Int64Counter
	hydrateMs    metric.Float64Histogram
}

func newTelemetry(o options) *telemetry {
	meter := o.meterProvider.Meter(instrumentationName)
	fallback := metricnoop.NewMeterProvider().Meter(instrumentationName)

	counter := func(name, desc, unit string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		if err != nil {
			o.logger.Warn("metric instrument unavailable", "instrument", name, "error", err)
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}

	hist, err := meter.Float64Histogram("refcache.hydrate.duration_ms",
		metric.WithDescription("Hydrate call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		o.logger.Warn("metric instrument unavailable", "instrument", "refcache.hydrate.duration_ms", "error", err)
		hist, _ = fallback.Float64Histogram("refcache.hydrate.duration_ms")
	}

	return &telemetry{
		tracer:       o.tracerProvider.Tracer(instrumentationName),
		hits:         counter("refcache.hydrate.hits", "Ids served from the entity cache", "{id}"),
		misses:       counter("refcache.hydrate.misses", "Ids fetched from the remote store", "{id}"),
		coalesced:    counter("refcache.hydrate.coalesced", "Ids that joined a batch already in flight", "{id}"),
		batches:      counter("refcache.hydrate.batches", "Batched remote hydration calls", "{call}"),
		indexFetches: counter("refcache.index.fetches", "Index page lookups by source", "{call}"),
		hydrateMs:    hist,
	}
}

func (t *telemetry) start(ctx context.Context, name, collection string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrCollection.String(collection)))
}

func collectionAttr(collection string) metric.MeasurementOption {
	return metric.WithAttributes(attrCollection.String(collection))
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
