package observability

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const correlationIDKey contextKey = "correlationID"

// CorrelationHeader is the inbound/outbound header carrying the request identifier.
const CorrelationHeader = "X-Request-ID"

// NewCorrelationID generates a new opaque per-request identifier.
func NewCorrelationID() string {
	return uuid.New().String()
}

// WithCorrelationID attaches a correlation identifier to the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext extracts the correlation identifier from the context.
// Returns an empty string when no identifier has been attached.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// CorrelationIDFromRequest extracts the correlation identifier from the request context.
func CorrelationIDFromRequest(r *http.Request) string {
	return CorrelationIDFromContext(r.Context())
}

// Propagate injects the correlation identifier and, when a span is active,
// the W3C trace context into the given outbound headers.
func Propagate(ctx context.Context, header http.Header) {
	if id := CorrelationIDFromContext(ctx); id != "" {
		header.Set(CorrelationHeader, id)
	}

	span := SpanFromContext(ctx)
	if span == nil {
		return
	}

	traceID, errT := trace.TraceIDFromHex(span.TraceID())
	spanID, errS := trace.SpanIDFromHex(span.SpanID())
	if errT != nil || errS != nil {
		return
	}

	var flags trace.TraceFlags
	if span.Sampled() {
		flags = trace.FlagsSampled
	}

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
	})

	propagator := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
	propagator.Inject(trace.ContextWithSpanContext(ctx, sc), propagation.HeaderCarrier(header))
}
