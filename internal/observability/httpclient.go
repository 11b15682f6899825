package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"pulse-backend/internal/apperrors"
)

// errServerStatus marks a 5xx upstream response inside the breaker so the
// breaker counts it as a failure.
var errServerStatus = errors.New("upstream server error status")

// CallResult is the outcome of a successful outbound call.
type CallResult struct {
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// CallClient performs outbound HTTP calls as child spans of the current
// request, propagating the correlation identifier and trace context in the
// outgoing headers. Repeated upstream failures trip a circuit breaker.
//
// Error mapping follows the service convention: timeout -> TimeoutError
// (504), transport failure or upstream error status -> UpstreamError (502).
// The call duration histogram is recorded for every call regardless of
// outcome; failures additionally increment the failure counter labeled by
// service and error type.
type CallClient struct {
	tracer  *Tracer
	metrics *Collector
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewCallClient creates a client with the given per-call timeout.
func NewCallClient(tracer *Tracer, metrics *Collector, timeout time.Duration, logger *zap.Logger) *CallClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "external",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.8
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &CallClient{
		tracer:  tracer,
		metrics: metrics,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		logger:  logger,
	}
}

// Call performs an outbound request under a child span named for the call.
// On success the returned result carries the response; when the upstream
// answered with an error status, both the result and an UpstreamError are
// returned so the caller can decide the outward status.
func (c *CallClient) Call(ctx context.Context, method, rawURL, service string) (*CallResult, error) {
	ctx, span := c.tracer.StartSpan(ctx, method+" "+rawURL)
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.url", rawURL),
		attribute.String("peer.service", service),
	)

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		wrapped := &apperrors.UpstreamError{Service: service, Err: err}
		span.RecordError(wrapped)
		_ = span.Close(StatusError, wrapped.Error())
		c.metrics.RecordExternalFailure(service, apperrors.TypeName(wrapped))
		return nil, wrapped
	}
	Propagate(ctx, req.Header)

	start := time.Now()
	outcome, callErr := c.breaker.Execute(func() (any, error) {
		resp, doErr := c.client.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		defer resp.Body.Close()

		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, readErr
		}

		result := &CallResult{StatusCode: resp.StatusCode, Body: body}
		if resp.StatusCode >= http.StatusInternalServerError {
			return result, errServerStatus
		}
		return result, nil
	})
	duration := time.Since(start)
	c.metrics.RecordExternalCall(service, duration)

	if callErr != nil && !errors.Is(callErr, errServerStatus) {
		wrapped := c.classify(service, callErr)
		span.RecordError(wrapped)

		message := wrapped.Error()
		var timeout *apperrors.TimeoutError
		if errors.As(wrapped, &timeout) {
			message = "timeout"
		}
		_ = span.Close(StatusError, message)
		c.metrics.RecordExternalFailure(service, apperrors.TypeName(wrapped))
		return nil, wrapped
	}

	result := outcome.(*CallResult)
	result.Duration = duration
	span.SetAttributes(
		attribute.Int("http.status_code", result.StatusCode),
		attribute.Int("http.response_size", len(result.Body)),
		attribute.Float64("http.duration_ms", float64(duration.Milliseconds())),
	)

	if result.StatusCode >= http.StatusBadRequest {
		errorType := "client_error"
		if result.StatusCode >= http.StatusInternalServerError {
			errorType = "server_error"
		}
		span.SetAttributes(attribute.String("error.type", errorType))

		wrapped := &apperrors.UpstreamError{Service: service, Status: result.StatusCode}
		span.RecordError(wrapped)
		_ = span.Close(StatusError, wrapped.Error())
		c.metrics.RecordExternalFailure(service, errorType)
		return result, wrapped
	}

	_ = span.Close(StatusOK, "")
	return result, nil
}

// classify maps transport-level failures onto the error taxonomy.
func (c *CallClient) classify(service string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &apperrors.UpstreamError{Service: service, Err: err}
	}

	var uerr *url.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &uerr) && uerr.Timeout()) {
		return &apperrors.TimeoutError{Service: service, Err: err}
	}

	return &apperrors.UpstreamError{Service: service, Err: err}
}
