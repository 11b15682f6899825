package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"pulse-backend/internal/observability"
)

func newDemoFixture(externalURL string) (*Demo, *observer.ObservedLogs, *observability.MemoryExporter) {
	exporter := observability.NewMemoryExporter()
	tracer := observability.NewTracer(exporter, observability.NewSampler(1.0, nil), zap.NewNop())
	metrics := observability.NewCollector("test", zap.NewNop())
	client := observability.NewCallClient(tracer, metrics, 2*time.Second, zap.NewNop())

	core, logs := observer.New(zapcore.InfoLevel)
	return NewDemo(tracer, client, zap.New(core), externalURL), logs, exporter
}

func serveDemo(h *Demo, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.Register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestDemo_Fast(t *testing.T) {
	h, _, _ := newDemoFixture("")

	rec := serveDemo(h, httptest.NewRequest(http.MethodGet, "/demo/fast", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "fast", body["endpoint_type"])
}

func TestDemo_Random(t *testing.T) {
	h, logs, _ := newDemoFixture("")

	rec := serveDemo(h, httptest.NewRequest(http.MethodGet, "/demo/random", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	value := body["value"].(float64)
	assert.GreaterOrEqual(t, value, 1.0)
	assert.LessOrEqual(t, value, 100.0)
	assert.Equal(t, 2, logs.Len(), "each generation step is logged")
}

func TestDemo_ErrorProneForced(t *testing.T) {
	h, logs, _ := newDemoFixture("")

	rec := serveDemo(h, httptest.NewRequest(http.MethodGet, "/demo/error-prone?force_error=true", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Random server error occurred", body["error"])

	entries := logs.FilterMessage("demo error triggered").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
}

func TestDemo_EchoRedactsSensitiveFields(t *testing.T) {
	h, logs, _ := newDemoFixture("")

	payload := `{"username":"alice","password":"hunter2","nested":{"api_key":"k"}}`
	req := httptest.NewRequest(http.MethodPost, "/demo/echo", strings.NewReader(payload))
	rec := serveDemo(h, req)

	// The response echoes the original payload untouched.
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "hunter2", body["password"])

	// The log record carries the redacted copy.
	entries := logs.FilterMessage("echo payload received").All()
	require.Len(t, entries, 1)
	logged := entries[0].ContextMap()["payload"].(map[string]any)
	assert.Equal(t, "alice", logged["username"])
	assert.Equal(t, observability.RedactionMarker, logged["password"])
	nested := logged["nested"].(map[string]any)
	assert.Equal(t, observability.RedactionMarker, nested["api_key"])
}

func TestDemo_EchoRejectsInvalidJSON(t *testing.T) {
	h, _, _ := newDemoFixture("")

	req := httptest.NewRequest(http.MethodPost, "/demo/echo", strings.NewReader("{not json"))
	rec := serveDemo(h, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDemo_SlowCancelledRequest(t *testing.T) {
	h, _, exporter := newDemoFixture("")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/demo/slow", nil).WithContext(ctx)
	serveDemo(h, req)

	spans := exporter.Spans()
	require.Len(t, spans, 1)
	assert.Equal(t, "simulated_db_query", spans[0].Name())
	status, message := spans[0].Status()
	assert.Equal(t, observability.StatusError, status)
	assert.Equal(t, "cancelled", message)
}

func TestDemo_ExternalSuccess(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"origin":"test"}`))
	}))
	defer upstream.Close()

	h, _, _ := newDemoFixture(upstream.URL)

	rec := serveDemo(h, httptest.NewRequest(http.MethodGet, "/demo/external", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "external-dependent", body["endpoint_type"])

	data := body["data"].(map[string]any)
	assert.Equal(t, "httpbin", data["external_service"])
	external := data["external_data"].(map[string]any)
	assert.Equal(t, "test", external["origin"])
}

func TestDemo_ExternalForcedFailure(t *testing.T) {
	h, _, _ := newDemoFixture("http://unused.example.com")

	rec := serveDemo(h, httptest.NewRequest(http.MethodGet, "/demo/external?error=true", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body["error"], "broken_service")
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Health("1.2.3")(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "1.2.3", body.Version)
}
