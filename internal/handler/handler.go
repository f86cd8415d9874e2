// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"net/http"
)

// Handler wraps application metadata for the info and fallback endpoints.
type Handler struct {
	version    string
	instanceID string
}

// New creates a new Handler instance.
func New(version, instanceID string) *Handler {
	return &Handler{
		version:    version,
		instanceID: instanceID,
	}
}

// Info describes the service and its routes.
// GET /
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"service":  "userhub",
		"version":  h.version,
		"instance": h.instanceID,
		"docs": map[string]string{
			"health":  "/health",
			"users":   "/users",
			"metrics": "/metrics",
		},
	}
	writeJSON(w, http.StatusOK, response)
}

// NotFound handles 404 responses for unknown routes.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"error": "resource not found",
	}
	writeJSON(w, http.StatusNotFound, response)
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"error": "method not allowed",
	}
	writeJSON(w, http.StatusMethodNotAllowed, response)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent; nothing useful left to do.
		_ = err
	}
}
