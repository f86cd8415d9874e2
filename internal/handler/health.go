package handler

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker defines an interface for checking a dependency's health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandler manages health check endpoints.
type HealthHandler struct {
	store HealthChecker
}

// NewHealthHandler creates a new HealthHandler.
// Pass nil for store if it is not yet initialized.
func NewHealthHandler(store HealthChecker) *HealthHandler {
	return &HealthHandler{
		store: store,
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string            `json:"status"`
	TimeUTC string            `json:"time_utc,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Health is the monitoring health endpoint.
// It returns 200 with {"status":"ok"} whenever the server is running,
// regardless of store state.
//
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:  "ok",
		TimeUTC: time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, http.StatusOK, response)
}

// Readyz is a readiness probe endpoint.
// It checks dependencies and returns 200 only if all are healthy.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	healthy := true

	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			checks["store"] = "error: " + err.Error()
			healthy = false
		} else {
			checks["store"] = "ok"
		}
	} else {
		checks["store"] = "not configured"
	}

	status := "ok"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status: status,
		Checks: checks,
	}
	writeJSON(w, statusCode, response)
}
