package observability

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TraceExporter receives closed spans. Export is fire-and-forget: delivery
// failures must be handled inside the exporter and never reach the request
// path. Every span of a sampled tree is exported on close, children before
// their parent.
type TraceExporter interface {
	Export(span *Span)
}

// NopExporter discards every span.
type NopExporter struct{}

func (NopExporter) Export(*Span) {}

// LogExporter writes closed spans to the service log. Intended for
// development, where a collector is often not running.
type LogExporter struct {
	logger *zap.Logger
}

// NewLogExporter creates an exporter that logs spans at debug level.
func NewLogExporter(logger *zap.Logger) *LogExporter {
	return &LogExporter{logger: logger}
}

func (e *LogExporter) Export(span *Span) {
	status, message := span.Status()
	fields := []zap.Field{
		zap.String("trace_id", span.TraceID()),
		zap.String("span_id", span.SpanID()),
		zap.Duration("duration", span.Duration()),
		zap.String("status", status.String()),
	}
	if parent := span.Parent(); parent != nil {
		fields = append(fields, zap.String("parent_span_id", parent.SpanID()))
	}
	if message != "" {
		fields = append(fields, zap.String("status_message", message))
	}
	e.logger.Debug("span "+span.Name(), fields...)
}

// MemoryExporter buffers exported spans in order of arrival. Used in tests
// to assert on export ordering and span content.
type MemoryExporter struct {
	mu    sync.Mutex
	spans []*Span
}

// NewMemoryExporter creates an empty in-memory exporter.
func NewMemoryExporter() *MemoryExporter {
	return &MemoryExporter{}
}

func (e *MemoryExporter) Export(span *Span) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spans = append(e.spans, span)
}

// Spans returns the exported spans in export order.
func (e *MemoryExporter) Spans() []*Span {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Span, len(e.spans))
	copy(out, e.spans)
	return out
}

// Reset discards all buffered spans.
func (e *MemoryExporter) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spans = nil
}

// FailingExporter panics on every export. Used in tests to verify exporter
// failures are contained by the tracer.
type FailingExporter struct{}

func (FailingExporter) Export(*Span) {
	panic("trace exporter unavailable")
}

// OTelOptions configures the OpenTelemetry bridge exporter.
type OTelOptions struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string // OTLP gRPC endpoint, e.g. localhost:4317
	Stdout         bool   // write spans to stdout instead of OTLP
}

// OTelExporter forwards request trace trees to an OpenTelemetry span
// exporter. Our span model is replayed through an SDK tracer with explicit
// timestamps when the root span closes; because child spans always close
// first, the whole tree is complete at that point.
//
// The SDK assigns its own trace identifiers on replay; the original ones are
// preserved as attributes so traces can still be joined with logs.
type OTelExporter struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewOTelExporter builds the bridge with either an OTLP gRPC or a stdout
// span exporter behind a batching processor.
func NewOTelExporter(ctx context.Context, opts OTelOptions) (*OTelExporter, error) {
	exporter, err := createSpanExporter(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create span exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(opts.ServiceName),
			semconv.ServiceVersion(opts.ServiceVersion),
			attribute.String("deployment.environment", opts.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	return &OTelExporter{
		provider: provider,
		tracer:   provider.Tracer(opts.ServiceName),
	}, nil
}

func createSpanExporter(ctx context.Context, opts OTelOptions) (sdktrace.SpanExporter, error) {
	if opts.Stdout {
		return stdouttrace.New(stdouttrace.WithWriter(os.Stdout))
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = "localhost:4317"
	}

	grpcOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(endpoint),
	}
	if endpoint == "localhost:4317" || endpoint == "127.0.0.1:4317" {
		grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
	}

	return otlptrace.New(ctx, otlptracegrpc.NewClient(grpcOpts...))
}

// Export replays a finished trace tree. Non-root spans are ignored; they are
// picked up when their root arrives.
func (e *OTelExporter) Export(span *Span) {
	if !span.IsRoot() {
		return
	}
	e.replay(context.Background(), span)
}

func (e *OTelExporter) replay(ctx context.Context, span *Span) {
	attrs := span.Attributes()
	attrs = append(attrs,
		attribute.String("pulse.trace_id", span.TraceID()),
		attribute.String("pulse.span_id", span.SpanID()),
	)

	ctx, otelSpan := e.tracer.Start(ctx, span.Name(),
		trace.WithTimestamp(span.StartTime()),
		trace.WithAttributes(attrs...),
	)

	for _, event := range span.Events() {
		otelSpan.AddEvent(event.Name,
			trace.WithTimestamp(event.Time),
			trace.WithAttributes(event.Attributes...),
		)
	}

	status, message := span.Status()
	switch status {
	case StatusOK:
		otelSpan.SetStatus(codes.Ok, "")
	case StatusError:
		otelSpan.SetStatus(codes.Error, message)
	}

	for _, child := range span.Children() {
		e.replay(ctx, child)
	}

	otelSpan.End(trace.WithTimestamp(span.EndTime()))
}

// Shutdown flushes buffered spans and releases the underlying provider.
func (e *OTelExporter) Shutdown(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}
