package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/userhub/userhub/internal/handler"
	"github.com/userhub/userhub/internal/metrics"
	"github.com/userhub/userhub/internal/middleware"
	"github.com/userhub/userhub/internal/service"
	"github.com/userhub/userhub/internal/store"
)

type userResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

// startServer boots the full stack behind an httptest server,
// mirroring the wiring in cmd/api.
func startServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	userStore := store.New()
	recorder := metrics.NewInMemory()
	userService := service.NewUserService(userStore, recorder)

	h := handler.New("test", "01E2EINSTANCE")
	healthHandler := handler.NewHealthHandler(userStore)
	userHandler := handler.NewUserHandler(userService, logger)
	metricsHandler := handler.NewMetricsHandler(recorder)

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: true}))
	r.Use(middleware.MaxBodySize(1 << 20))

	r.Get("/", h.Info)
	r.Get("/health", healthHandler.Health)
	r.Get("/readyz", healthHandler.Readyz)
	r.Get("/metrics", metricsHandler.Metrics)
	r.Route("/users", func(r chi.Router) {
		r.Get("/", userHandler.List)
		r.Post("/", userHandler.Create)
		r.Get("/{id}", userHandler.Get)
		r.Delete("/{id}", userHandler.Delete)
	})
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func TestUserLifecycle(t *testing.T) {
	srv := startServer(t)

	// Health is green before any user exists.
	resp, body := do(t, http.MethodGet, srv.URL+"/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /health: status %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"status":"ok"`) {
		t.Fatalf("GET /health: unexpected body %s", body)
	}

	// Create Ann.
	resp, body = do(t, http.MethodPost, srv.URL+"/users", `{"name":"Ann","email":"ann@x.com"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /users: status %d, want 201 (body %s)", resp.StatusCode, body)
	}

	var created userResponse
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode created user: %v", err)
	}
	if created.ID != 1 || created.Name != "Ann" || created.Email != "ann@x.com" {
		t.Fatalf("created user = %+v, want id=1 Ann ann@x.com", created)
	}

	// Read her back.
	resp, body = do(t, http.MethodGet, fmt.Sprintf("%s/users/%d", srv.URL, created.ID), "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /users/1: status %d, want 200", resp.StatusCode)
	}
	var fetched userResponse
	if err := json.Unmarshal(body, &fetched); err != nil {
		t.Fatalf("decode fetched user: %v", err)
	}
	if fetched != created {
		t.Fatalf("fetched user %+v differs from created %+v", fetched, created)
	}

	// She shows up in the listing.
	resp, body = do(t, http.MethodGet, srv.URL+"/users", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /users: status %d, want 200", resp.StatusCode)
	}
	var listed []userResponse
	if err := json.Unmarshal(body, &listed); err != nil {
		t.Fatalf("decode user list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != 1 {
		t.Fatalf("user list = %+v, want exactly Ann", listed)
	}

	// Delete, then both lookups miss.
	resp, _ = do(t, http.MethodDelete, fmt.Sprintf("%s/users/%d", srv.URL, created.ID), "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE /users/1: status %d, want 204", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodGet, srv.URL+"/users/1", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET /users/1 after delete: status %d, want 404", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodDelete, srv.URL+"/users/1", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second DELETE /users/1: status %d, want 404", resp.StatusCode)
	}

	// IDs are never reused after deletion.
	resp, body = do(t, http.MethodPost, srv.URL+"/users", `{"name":"Bob","email":"bob@x.com"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /users: status %d, want 201", resp.StatusCode)
	}
	var second userResponse
	if err := json.Unmarshal(body, &second); err != nil {
		t.Fatalf("decode second user: %v", err)
	}
	if second.ID != 2 {
		t.Fatalf("second user id = %d, want 2", second.ID)
	}

	// Health stays green regardless of store state.
	resp, _ = do(t, http.MethodGet, srv.URL+"/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /health: status %d, want 200", resp.StatusCode)
	}

	// Metrics saw the churn.
	resp, body = do(t, http.MethodGet, srv.URL+"/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /metrics: status %d, want 200", resp.StatusCode)
	}
	metricsBody := string(body)
	if !strings.Contains(metricsBody, "userhub_users_created_total 2") {
		t.Errorf("metrics missing created count: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "userhub_users_deleted_total 1") {
		t.Errorf("metrics missing deleted count: %s", metricsBody)
	}
}

func TestValidationAndFallbacks(t *testing.T) {
	srv := startServer(t)

	// Missing fields are rejected and never consume an id.
	resp, body := do(t, http.MethodPost, srv.URL+"/users", `{"name":"","email":""}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("POST /users invalid: status %d, want 400 (body %s)", resp.StatusCode, body)
	}

	// Malformed JSON surfaces as a generic 400.
	resp, _ = do(t, http.MethodPost, srv.URL+"/users", `{"name":`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("POST /users malformed: status %d, want 400", resp.StatusCode)
	}

	resp, body = do(t, http.MethodPost, srv.URL+"/users", `{"name":"Ann","email":"ann@x.com"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /users: status %d, want 201", resp.StatusCode)
	}
	var created userResponse
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode created user: %v", err)
	}
	if created.ID != 1 {
		t.Fatalf("first valid user id = %d, want 1", created.ID)
	}

	// Unknown routes and methods get JSON errors.
	resp, _ = do(t, http.MethodGet, srv.URL+"/nope", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET /nope: status %d, want 404", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPatch, srv.URL+"/users/1", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("PATCH /users/1: status %d, want 405", resp.StatusCode)
	}

	// Request IDs are issued when the client sends none.
	resp, _ = do(t, http.MethodGet, srv.URL+"/users", "")
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header on response")
	}
}
