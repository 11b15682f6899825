package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pulse-backend/internal/apperrors"
	"pulse-backend/internal/logging"
)

// DefaultSlowThreshold marks requests that warrant a slow_request event.
const DefaultSlowThreshold = 4 * time.Second

// RouteUnknown is the route label for requests that match no registered
// route. Raw request paths must never become label values; everything
// unmatched collapses into this one series per method/status.
const RouteUnknown = "unknown"

// Pipeline is the interceptor chain wrapped around every inbound request.
// Per request it assigns a correlation identifier, opens the root span,
// tracks the active-request gauge, records completion metrics, and emits
// sanitized structured logs, all tied to the same identifier.
//
// The pipeline never swallows a handler panic: the failure is accounted for
// in metrics, trace, and logs, then re-raised for the recovery layer above.
type Pipeline struct {
	tracer        *Tracer
	metrics       *Collector
	logs          logging.Sink
	logger        *zap.Logger
	slowThreshold time.Duration
	skipPaths     map[string]struct{}
	routes        chi.Routes
}

// NewPipeline assembles the request pipeline. The zap logger is only used
// for the pipeline's own diagnostics, never for request records; those go
// through the sink.
func NewPipeline(tracer *Tracer, metrics *Collector, logs logging.Sink, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		tracer:        tracer,
		metrics:       metrics,
		logs:          logs,
		logger:        logger,
		slowThreshold: DefaultSlowThreshold,
		skipPaths:     make(map[string]struct{}),
	}
}

// SkipPaths excludes exact request paths from the pipeline entirely.
// Used for /metrics and health probes.
func (p *Pipeline) SkipPaths(paths ...string) *Pipeline {
	for _, path := range paths {
		p.skipPaths[path] = struct{}{}
	}
	return p
}

// SlowThreshold overrides the slow-request threshold.
func (p *Pipeline) SlowThreshold(d time.Duration) *Pipeline {
	if d > 0 {
		p.slowThreshold = d
	}
	return p
}

// Routes gives the pipeline the routing table so it can resolve the route
// pattern before the request is dispatched. The middleware runs ahead of
// routing, so chi has not matched the request yet when the root span and the
// active-request gauge need their label.
func (p *Pipeline) Routes(routes chi.Routes) *Pipeline {
	p.routes = routes
	return p
}

// routeLabel resolves the bounded route label for a request: the matched
// chi pattern when one is already in context, otherwise a lookup against the
// routing table, otherwise RouteUnknown.
func (p *Pipeline) routeLabel(r *http.Request) string {
	if pattern := chi.RouteContext(r.Context()).RoutePattern(); pattern != "" {
		return pattern
	}
	if p.routes != nil {
		rctx := chi.NewRouteContext()
		if pattern := p.routes.Find(rctx, r.Method, r.URL.Path); pattern != "" {
			return pattern
		}
	}
	return RouteUnknown
}

// Middleware wraps a handler with the full observability chain.
func (p *Pipeline) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, skip := p.skipPaths[r.URL.Path]; skip {
			next.ServeHTTP(w, r)
			return
		}

		correlationID := r.Header.Get(CorrelationHeader)
		if correlationID == "" {
			correlationID = NewCorrelationID()
		}
		ctx := WithCorrelationID(r.Context(), correlationID)
		w.Header().Set(CorrelationHeader, correlationID)

		route := p.routeLabel(r)

		ctx, span := p.tracer.StartRequestSpan(ctx, r.Method+" "+route, route)
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
			attribute.String("http.target", r.URL.Path),
			attribute.String("http.remote_addr", r.RemoteAddr),
			attribute.String("request.id", correlationID),
		)
		w.Header().Set("X-Trace-ID", span.TraceID())

		req := r.WithContext(ctx)
		start := time.Now()

		p.write(zapcore.InfoLevel, "request_started", correlationID, map[string]any{
			"method":      r.Method,
			"route":       route,
			"client_host": r.RemoteAddr,
		})

		// The release and the deferred outcome block together guarantee that
		// the gauge decrement and the span close run on every exit path.
		release := p.metrics.TrackActive(route)
		defer release()

		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			duration := time.Since(start)

			if duration > p.slowThreshold {
				p.metrics.RecordSlow(route)
				span.AddEvent("slow_request",
					attribute.Float64("duration_seconds", duration.Seconds()),
				)
			}

			if rec := recover(); rec != nil {
				err := recoveredError(rec)
				p.metrics.RecordError(route, apperrors.TypeName(rec))
				span.RecordError(err)
				_ = span.Close(StatusError, err.Error())
				p.write(zapcore.ErrorLevel, "request_failed", correlationID, map[string]any{
					"route":    route,
					"error":    err.Error(),
					"duration": duration.Seconds(),
				})
				panic(rec)
			}

			status := ww.status
			p.metrics.RecordRequest(r.Method, route, strconv.Itoa(status), duration)
			span.SetAttributes(
				attribute.Int("http.status_code", status),
				attribute.Int64("http.response_size", ww.bytesWritten),
				attribute.Float64("http.duration_ms", float64(duration.Milliseconds())),
			)

			switch {
			case req.Context().Err() != nil:
				_ = span.Close(StatusError, "cancelled")
			case status >= http.StatusInternalServerError:
				p.write(zapcore.ErrorLevel, "server_error", correlationID, map[string]any{
					"route":  route,
					"status": status,
				})
				_ = span.Close(StatusError, http.StatusText(status))
			default:
				_ = span.Close(StatusOK, "")
			}

			p.write(zapcore.InfoLevel, "request_completed", correlationID, map[string]any{
				"route":     route,
				"status":    status,
				"duration":  duration.Seconds(),
				"cancelled": req.Context().Err() != nil,
			})
		}()

		next.ServeHTTP(ww, req)
	})
}

// write sanitizes the fields and hands the record to the sink. A failing
// sink is contained here: the error is noted on the service logger and the
// request continues untouched.
func (p *Pipeline) write(level zapcore.Level, event, correlationID string, fields map[string]any) {
	defer func() {
		if rec := recover(); rec != nil && p.logger != nil {
			p.logger.Debug("log sink write failed",
				zap.String("event", event),
				zap.Any("panic", rec),
			)
		}
	}()
	p.logs.Write(logging.Record{
		Time:      time.Now(),
		Level:     level,
		Event:     event,
		RequestID: correlationID,
		Fields:    Sanitize(fields),
	})
}

func recoveredError(rec any) error {
	if err, ok := rec.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", rec)
}

// responseWriter captures the status code and body size for metrics and
// span attributes.
type responseWriter struct {
	http.ResponseWriter
	status        int
	bytesWritten  int64
	headerWritten bool
}

func (w *responseWriter) WriteHeader(status int) {
	if !w.headerWritten {
		w.status = status
		w.headerWritten = true
		w.ResponseWriter.WriteHeader(status)
	}
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.headerWritten {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += int64(n)
	return n, err
}
