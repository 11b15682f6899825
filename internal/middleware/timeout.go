package middleware

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"pulse-backend/internal/observability"
	"pulse-backend/pkg/api"
)

// Timeout bounds request handling time. The handler runs in its own goroutine
// against a buffered response writer; exactly one outcome reaches the real
// ResponseWriter — the buffered response when the handler finishes in time,
// or the 408 written here when it does not. A handler that keeps running past
// the deadline only ever writes into the discarded buffer, so the connection
// is never written concurrently or after the middleware returns.
func Timeout(timeout time.Duration, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			r = r.WithContext(ctx)

			buf := newBufferedWriter()
			done := make(chan struct{})
			panicked := make(chan any, 1)

			go func() {
				defer func() {
					if rec := recover(); rec != nil {
						panicked <- rec
						return
					}
					close(done)
				}()
				next.ServeHTTP(buf, r)
			}()

			select {
			case <-done:
				buf.copyTo(w)
			case rec := <-panicked:
				panic(rec)
			case <-ctx.Done():
				logger.Warn("request timed out",
					zap.String("request_id", observability.CorrelationIDFromRequest(r)),
					zap.String("path", r.URL.Path),
				)
				api.Error(w, http.StatusRequestTimeout, "Request timeout")
			}
		})
	}
}

// bufferedWriter accumulates a handler's response in memory. Only the handler
// goroutine writes to it; copyTo runs after that goroutine has finished.
type bufferedWriter struct {
	header      http.Header
	body        bytes.Buffer
	status      int
	wroteHeader bool
}

func newBufferedWriter() *bufferedWriter {
	return &bufferedWriter{
		header: make(http.Header),
		status: http.StatusOK,
	}
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(status int) {
	if !b.wroteHeader {
		b.status = status
		b.wroteHeader = true
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if !b.wroteHeader {
		b.WriteHeader(http.StatusOK)
	}
	return b.body.Write(p)
}

func (b *bufferedWriter) copyTo(w http.ResponseWriter) {
	dst := w.Header()
	for key, values := range b.header {
		dst[key] = values
	}
	w.WriteHeader(b.status)
	w.Write(b.body.Bytes())
}
