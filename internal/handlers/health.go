package handlers

import (
	"net/http"
	"time"

	"pulse-backend/pkg/api"
)

// HealthResponse is the body of the health check endpoint.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// Health returns a handler reporting service liveness.
func Health(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, HealthResponse{
			Status:    "healthy",
			Version:   version,
			Timestamp: time.Now().UTC(),
		})
	}
}
