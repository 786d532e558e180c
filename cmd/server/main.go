// Study Hub attendance server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/studyhub/internal/api"
	"github.com/ashureev/studyhub/internal/attendance"
	"github.com/ashureev/studyhub/internal/config"
	"github.com/ashureev/studyhub/internal/healthcheck"
	"github.com/ashureev/studyhub/internal/identity"
	"github.com/ashureev/studyhub/internal/live"
	"github.com/ashureev/studyhub/internal/middleware"
	"github.com/ashureev/studyhub/internal/store"
	"github.com/ashureev/studyhub/internal/stream"
	"github.com/ashureev/studyhub/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: &level,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.LogLevel)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "db_driver", cfg.Database.Driver)

	// Initialize dependencies.
	repo, err := store.Open(cfg.Database.Driver, cfg.Database.Path, cfg.Database.URL)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Initialize services.
	svc := attendance.NewService(repo, attendance.WithLogger(logger))
	feed := live.NewFeed(repo, logger)
	cm := stream.NewConnManager()

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, svc)
	healthHandler := api.NewHealthHandler(repo, cfg.Health.CheckTimeout)
	wsHandler := stream.NewWebSocketHandler(feed, cm, cfg.AllowedOrigins(), cfg.IsDevelopment(),
		live.WithViewLogger(logger))
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// Admin API, rate limited per client IP.
	r.Group(func(r chi.Router) {
		r.Use(limiter.Handler)
		baseHandler.RegisterRoutes(r)
	})

	// WebSocket endpoint.
	r.Get("/ws/dashboard", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// WriteTimeout stays 0 so WebSocket streams are not cut.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start gRPC health server (optional).
	healthDone := make(chan struct{})
	if cfg.Health.GRPCAddr != "" {
		hs := healthcheck.NewServer(cfg.Health.GRPCAddr, repo, cfg.Health.ProbeInterval, cfg.Health.CheckTimeout, logger)
		go func() {
			defer close(healthDone)
			if err := hs.Run(ctx); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	} else {
		close(healthDone)
		slog.Info("gRPC health server disabled (GRPC_HEALTH_ADDR not set)")
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by Shutdown.
	cm.CloseAll()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	select {
	case <-healthDone:
	case <-shutdownCtx.Done():
		slog.Warn("gRPC health server did not stop in time")
	}

	slog.Info("Server stopped successfully")
}
