// Package healthcheck serves the standard gRPC health protocol backed by a
// periodic store probe.
package healthcheck

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported alongside the overall status.
const ServiceName = "studyhub.Attendance"

// Pinger is the dependency whose reachability decides the serving status.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes grpc.health.v1 on its own listener.
type Server struct {
	address  string
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	health   *health.Server
	logger   *slog.Logger
}

// NewServer creates a health server. Status starts as NOT_SERVING until the
// first probe succeeds.
func NewServer(address string, pinger Pinger, interval, timeout time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &Server{
		address:  address,
		pinger:   pinger,
		interval: interval,
		timeout:  timeout,
		health:   hs,
		logger:   logger.With("module", "grpc_health"),
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.address, err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, s.health)

	s.Probe(ctx)
	s.startProber(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info("Stopping gRPC health server")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info("Starting gRPC health server", "address", lis.Addr().String())
	if err := srv.Serve(lis); err != nil {
		return fmt.Errorf("serve grpc health: %w", err)
	}
	return nil
}

// Probe pings the dependency once and records the result.
func (s *Server) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := s.pinger.Ping(pctx); err != nil {
		s.logger.Warn("Health probe failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

func (s *Server) startProber(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		s.logger.Info("Health prober started", "interval", s.interval)

		for {
			select {
			case <-ticker.C:
				s.Probe(ctx)
			case <-ctx.Done():
				s.logger.Info("Health prober shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
