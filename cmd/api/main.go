// Package main is the entrypoint for the Userhub API server.
package main

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"

	"github.com/userhub/userhub/internal/config"
	"github.com/userhub/userhub/internal/handler"
	"github.com/userhub/userhub/internal/metrics"
	"github.com/userhub/userhub/internal/middleware"
	"github.com/userhub/userhub/internal/server"
	"github.com/userhub/userhub/internal/service"
	"github.com/userhub/userhub/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg)

	// Instance ID correlates logs across restarts; the store is volatile,
	// so every boot is a fresh registry.
	instanceID := ulid.Make().String()

	// Initialize store and services
	userStore := store.New()
	recorder := metrics.NewInMemory()
	userService := service.NewUserService(userStore, recorder)

	// Initialize handlers
	h := handler.New(cfg.AppVersion, instanceID)
	healthHandler := handler.NewHealthHandler(userStore)
	userHandler := handler.NewUserHandler(userService, logger)
	metricsHandler := handler.NewMetricsHandler(recorder)

	// Setup router
	r := setupRouter(h, healthHandler, userHandler, metricsHandler, cfg, logger)

	// Create and run server
	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"version", cfg.AppVersion,
		"instance", instanceID,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	h *handler.Handler,
	healthHandler *handler.HealthHandler,
	userHandler *handler.UserHandler,
	metricsHandler *handler.MetricsHandler,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{
		IsDevelopment:      cfg.IsDevelopment(),
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	}))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	if origins := cfg.GetCORSAllowedOrigins(); len(origins) > 0 {
		corsCfg := middleware.DefaultCORSConfig()
		corsCfg.AllowedOrigins = origins
		r.Use(middleware.CORS(corsCfg))
	}

	// Root info endpoint
	r.Get("/", h.Info)

	// Health endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/readyz", healthHandler.Readyz)

	// Metrics endpoint
	r.Get("/metrics", metricsHandler.Metrics)

	// User resource
	r.Route("/users", func(r chi.Router) {
		r.Get("/", userHandler.List)
		r.Post("/", userHandler.Create)
		r.Get("/{id}", userHandler.Get)
		r.Delete("/{id}", userHandler.Delete)
	})

	// 404 and 405 handlers
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}
