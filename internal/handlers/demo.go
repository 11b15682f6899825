// Package handlers contains the demo HTTP endpoints exercising the
// observability pipeline: fast, slow, error-prone, echo, and
// external-dependent scenarios.
package handlers

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"pulse-backend/internal/apperrors"
	"pulse-backend/internal/observability"
	"pulse-backend/pkg/api"
)

// DemoResponse is the common response shape for demo endpoints.
type DemoResponse struct {
	Message      string         `json:"message"`
	Timestamp    time.Time      `json:"timestamp"`
	EndpointType string         `json:"endpoint_type"`
	Data         map[string]any `json:"data,omitempty"`
}

// Demo bundles the demo endpoints and their collaborators.
type Demo struct {
	tracer      *observability.Tracer
	client      *observability.CallClient
	logger      *zap.Logger
	externalURL string
}

// NewDemo creates the demo endpoint set.
func NewDemo(tracer *observability.Tracer, client *observability.CallClient, logger *zap.Logger, externalURL string) *Demo {
	return &Demo{
		tracer:      tracer,
		client:      client,
		logger:      logger,
		externalURL: externalURL,
	}
}

// Register mounts the demo routes on the given router.
func (h *Demo) Register(r chi.Router) {
	r.Get("/demo/fast", h.Fast)
	r.Get("/demo/random", h.Random)
	r.Get("/demo/slow", h.Slow)
	r.Get("/demo/error-prone", h.ErrorProne)
	r.Post("/demo/echo", h.Echo)
	r.Get("/demo/external", h.External)
}

// Fast responds immediately.
func (h *Demo) Fast(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, DemoResponse{
		Message:      "This is a fast endpoint with standard response time",
		Timestamp:    time.Now().UTC(),
		EndpointType: "fast",
		Data:         map[string]any{"processing_time_ms": 5},
	})
}

// Random returns a random number, logging each step.
func (h *Demo) Random(w http.ResponseWriter, r *http.Request) {
	requestID := observability.CorrelationIDFromRequest(r)

	h.logger.Info("generating random number", zap.String("request_id", requestID))
	value := rand.Intn(100) + 1
	h.logger.Info("random number generated",
		zap.String("request_id", requestID),
		zap.Int("value", value),
	)

	api.Success(w, http.StatusOK, map[string]any{"value": value})
}

// Slow simulates a database-bound request with a 0.5-3s delay under a child
// span. A cancelled request aborts the wait.
func (h *Demo) Slow(w http.ResponseWriter, r *http.Request) {
	delay := time.Duration(500+rand.Intn(2500)) * time.Millisecond

	ctx, span := h.tracer.StartSpan(r.Context(), "simulated_db_query")
	span.SetAttributes(
		attribute.String("db.operation", "select"),
		attribute.Float64("db.simulated_delay_seconds", delay.Seconds()),
	)

	select {
	case <-time.After(delay):
		_ = span.Close(observability.StatusOK, "")
	case <-ctx.Done():
		_ = span.Close(observability.StatusError, "cancelled")
		return
	}

	api.Success(w, http.StatusOK, DemoResponse{
		Message:      "This is a slow endpoint simulating database delay",
		Timestamp:    time.Now().UTC(),
		EndpointType: "slow",
		Data: map[string]any{
			"processing_time_ms":  delay.Milliseconds(),
			"simulated_component": "database",
		},
	})
}

// ErrorProne fails 30% of the time, or always with ?force_error=true.
func (h *Demo) ErrorProne(w http.ResponseWriter, r *http.Request) {
	requestID := observability.CorrelationIDFromRequest(r)
	forced := r.URL.Query().Get("force_error") == "true"

	if forced || rand.Float64() < 0.3 {
		h.logger.Error("demo error triggered",
			zap.String("request_id", requestID),
			zap.Bool("forced", forced),
		)
		api.Error(w, http.StatusInternalServerError, "Random server error occurred")
		return
	}

	api.Success(w, http.StatusOK, DemoResponse{
		Message:      "This is an error-prone endpoint that successfully responded",
		Timestamp:    time.Now().UTC(),
		EndpointType: "error-prone",
		Data:         map[string]any{"error_probability": 0.3},
	})
}

// Echo returns the posted JSON payload. The payload is logged through the
// redactor so sensitive fields never reach the log sink.
func (h *Demo) Echo(w http.ResponseWriter, r *http.Request) {
	requestID := observability.CorrelationIDFromRequest(r)

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	h.logger.Info("echo payload received",
		zap.String("request_id", requestID),
		zap.Any("payload", observability.Sanitize(payload)),
	)

	api.Success(w, http.StatusOK, payload)
}

// External calls the configured upstream through the traced client. With
// ?error=true the call targets an unreachable host to exercise the failure
// path.
func (h *Demo) External(w http.ResponseWriter, r *http.Request) {
	url := h.externalURL
	service := "httpbin"
	if r.URL.Query().Get("error") == "true" {
		url = "http://non-existent-service.invalid/get"
		service = "broken_service"
	}

	result, err := h.client.Call(r.Context(), http.MethodGet, url, service)
	if err != nil {
		api.Error(w, apperrors.HTTPStatus(err), err.Error())
		return
	}

	var externalData map[string]any
	if jsonErr := json.Unmarshal(result.Body, &externalData); jsonErr != nil {
		externalData = map[string]any{"raw_size": len(result.Body)}
	}

	api.Success(w, http.StatusOK, DemoResponse{
		Message:      "Successfully called external service",
		Timestamp:    time.Now().UTC(),
		EndpointType: "external-dependent",
		Data: map[string]any{
			"external_service":   service,
			"processing_time_ms": result.Duration.Milliseconds(),
			"external_data":      externalData,
		},
	})
}
