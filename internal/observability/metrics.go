package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Collector holds all Prometheus metrics for the service. Label values come
// from the enumerated route/method/status/error-type vocabulary only; raw
// request input must never become a label value.
//
// All recording methods are safe for concurrent use and never propagate a
// failure to the request path: a panicking instrument is caught, logged at
// debug level, and the request continues as if the recording succeeded.
type Collector struct {
	registry *prometheus.Registry
	logger   *zap.Logger

	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
	ActiveRequests *prometheus.GaugeVec
	ErrorCount     *prometheus.CounterVec
	SlowRequests   *prometheus.CounterVec

	ExternalDuration *prometheus.HistogramVec
	ExternalFailures *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1.0, 2.0, 4.0},
		},
		[]string{"method", "route"},
	)

	activeRequests := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_requests",
			Help:      "Number of currently active requests",
		},
		[]string{"route"},
	)

	errorCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "error_count_total",
			Help:      "Total error count by type",
		},
		[]string{"route", "error_type"},
	)

	slowRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slow_requests_total",
			Help:      "Requests taking longer than the slow threshold",
		},
		[]string{"route"},
	)

	externalDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_api_duration_seconds",
			Help:      "External API call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1.0, 2.0, 4.0},
		},
		[]string{"service"},
	)

	externalFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_api_failures_total",
			Help:      "External API call failures",
		},
		[]string{"service", "error_type"},
	)

	registry.MustRegister(
		httpRequests,
		httpDuration,
		activeRequests,
		errorCount,
		slowRequests,
		externalDuration,
		externalFailures,
	)

	return &Collector{
		registry:         registry,
		logger:           logger,
		HTTPRequests:     httpRequests,
		HTTPDuration:     httpDuration,
		ActiveRequests:   activeRequests,
		ErrorCount:       errorCount,
		SlowRequests:     slowRequests,
		ExternalDuration: externalDuration,
		ExternalFailures: externalFailures,
	}
}

// RecordRequest records the completion of one request: the status counter
// and the latency histogram, each exactly once.
func (c *Collector) RecordRequest(method, route, status string, duration time.Duration) {
	c.safeRecord("http_requests", func() {
		c.HTTPRequests.WithLabelValues(method, route, status).Inc()
		c.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
	})
}

// RecordError increments the error counter for a failed request.
func (c *Collector) RecordError(route, errorType string) {
	c.safeRecord("error_count", func() {
		c.ErrorCount.WithLabelValues(route, errorType).Inc()
	})
}

// RecordSlow increments the slow-request counter for a route.
func (c *Collector) RecordSlow(route string) {
	c.safeRecord("slow_requests", func() {
		c.SlowRequests.WithLabelValues(route).Inc()
	})
}

// TrackActive increments the active-request gauge and returns the matching
// release. The release decrements exactly once no matter how often it is
// called; callers defer it so the decrement runs on every exit path,
// including panic and cancellation.
func (c *Collector) TrackActive(route string) (release func()) {
	c.safeRecord("active_requests", func() {
		c.ActiveRequests.WithLabelValues(route).Inc()
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			c.safeRecord("active_requests", func() {
				c.ActiveRequests.WithLabelValues(route).Dec()
			})
		})
	}
}

// RecordExternalCall records the duration of an outbound call, regardless of
// outcome.
func (c *Collector) RecordExternalCall(service string, duration time.Duration) {
	c.safeRecord("external_api_duration", func() {
		c.ExternalDuration.WithLabelValues(service).Observe(duration.Seconds())
	})
}

// RecordExternalFailure increments the outbound failure counter.
func (c *Collector) RecordExternalFailure(service, errorType string) {
	c.safeRecord("external_api_failures", func() {
		c.ExternalFailures.WithLabelValues(service, errorType).Inc()
	})
}

// Handler returns the Prometheus exposition handler for this registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, used by tests for assertions.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) safeRecord(name string, record func()) {
	defer func() {
		if rec := recover(); rec != nil && c.logger != nil {
			c.logger.Debug("metric recording failed",
				zap.String("metric", name),
				zap.Any("panic", rec),
			)
		}
	}()
	record()
}
