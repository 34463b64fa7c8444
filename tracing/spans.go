// Package tracing provides optional OpenTelemetry instrumentation for
// cache lookups and network retrievals. Spans are only recorded when a
// [Config] is wired in via the WithOpenTelemetry cache option.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tier values recorded on fetch spans to say where the bytes came from.
const (
	TierMemory     = "memory"
	TierJoined     = "joined"
	TierPersistent = "persistent"
	TierNetwork    = "network"
)

// Config holds the OpenTelemetry configuration used by the cache. A nil
// *Config produces no-op spans, so callers can thread an optional config
// through without nil checks.
type Config struct {
	// TracerProvider supplies the Tracer used to create spans. When nil the
	// global otel.GetTracerProvider() is used.
	TracerProvider trace.TracerProvider
}

var noopTracer = noop.NewTracerProvider().Tracer("")

// tracer returns a configured [trace.Tracer].
func (c *Config) tracer() trace.Tracer {
	if c == nil {
		return noopTracer
	}
	tp := c.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer("github.com/Keksclan/hoard/tracing")
}

// StartFetch opens a span covering one coordinator fetch, from lookup to
// settled outcome.
func (c *Config) StartFetch(ctx context.Context, id string) (context.Context, trace.Span) {
	return c.tracer().Start(ctx, "hoard.Fetch",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("hoard.id", id)),
	)
}

// StartRetrieval opens a span covering the network transfer behind a shared
// fetch.
func (c *Config) StartRetrieval(ctx context.Context, url string) (context.Context, trace.Span) {
	return c.tracer().Start(ctx, "hoard.retrieve",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("url.full", url)),
	)
}

// RecordTier tags the span with the tier that resolved the fetch.
func RecordTier(span trace.Span, tier string) {
	span.SetAttributes(attribute.String("hoard.tier", tier))
}

// RecordOutcome maps the binary fetch outcome onto the span status.
func RecordOutcome(span trace.Span, ok bool) {
	if ok {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.SetStatus(codes.Error, "absent")
}
