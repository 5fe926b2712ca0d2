package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	headerTraceparent = "traceparent"
	headerTracestate  = "tracestate"
)

// TraceContextStrings serializes the span context of ctx so it can be stored
// next to an outbox row and restored when the row is relayed.
func TraceContextStrings(ctx context.Context) (traceparent string, tracestate string) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.Get(headerTraceparent), carrier.Get(headerTracestate)
}

// ContextWithTraceContext is the inverse of TraceContextStrings. ctx is
// returned unchanged when no traceparent was stored.
func ContextWithTraceContext(ctx context.Context, traceparent string, tracestate string) context.Context {
	if traceparent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{headerTraceparent: traceparent}
	if tracestate != "" {
		carrier[headerTracestate] = tracestate
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
