package observability

import (
	"context"

	"go.uber.org/zap"
)

const spanContextKey contextKey = "activeSpan"

// Tracer creates request trace trees and hands closed spans to the exporter.
// Sampling is decided once per request at root creation; children inherit
// the decision.
type Tracer struct {
	exporter TraceExporter
	sampler  *Sampler
	logger   *zap.Logger
}

// NewTracer creates a tracer. A nil exporter disables export entirely.
func NewTracer(exporter TraceExporter, sampler *Sampler, logger *zap.Logger) *Tracer {
	if exporter == nil {
		exporter = NopExporter{}
	}
	if sampler == nil {
		sampler = NewSampler(1.0, nil)
	}
	return &Tracer{
		exporter: exporter,
		sampler:  sampler,
		logger:   logger,
	}
}

// StartRequestSpan opens the root span for one inbound request. The sampling
// decision is made against the route pattern.
func (t *Tracer) StartRequestSpan(ctx context.Context, name, route string) (context.Context, *Span) {
	span := newRootSpan(t, name, t.sampler.Sample(route))
	return ContextWithSpan(ctx, span), span
}

// StartSpan opens a child of the span carried by the context, or a new root
// when the context carries none.
func (t *Tracer) StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		span := newRootSpan(t, name, t.sampler.Sample(""))
		return ContextWithSpan(ctx, span), span
	}
	span := parent.StartChild(name)
	return ContextWithSpan(ctx, span), span
}

// export hands a closed span to the exporter. Exporter failures are contained
// here; they are logged at debug level and never reach the request path.
func (t *Tracer) export(span *Span) {
	if !span.sampled {
		return
	}
	defer func() {
		if rec := recover(); rec != nil && t.logger != nil {
			t.logger.Debug("trace export failed",
				zap.String("span", span.Name()),
				zap.Any("panic", rec),
			)
		}
	}()
	t.exporter.Export(span)
}

// ContextWithSpan attaches a span to the context as the active span.
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	return context.WithValue(ctx, spanContextKey, span)
}

// SpanFromContext returns the active span, or nil when none is attached.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanContextKey).(*Span); ok {
		return span
	}
	return nil
}
