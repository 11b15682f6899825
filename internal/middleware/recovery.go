// Package middleware provides transport-level middleware that sits outside
// the observability pipeline: panic recovery, CORS, and request timeouts.
package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"pulse-backend/internal/observability"
	"pulse-backend/pkg/api"
)

// Recovery converts panics into 500 responses. It is mounted outside the
// observability pipeline, which records the failure and re-raises; recovery
// is what stops the panic from killing the connection handler.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", observability.CorrelationIDFromRequest(r)),
						zap.Any("panic", rec),
						zap.ByteString("stack", debug.Stack()),
					)

					if w.Header().Get("Content-Type") == "" {
						api.Error(w, http.StatusInternalServerError, "Internal server error")
					}
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
