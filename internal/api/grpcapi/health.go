// Package grpcapi serves the standard gRPC health protocol. The "catalog"
// service status follows the catalog circuit breaker.
package grpcapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vietddude/inventory/internal/infra/resilience"
)

// CatalogService is the health service name reported for the catalog dependency.
const CatalogService = "catalog"

// HealthServer wraps a gRPC server exposing grpc.health.v1.Health.
type HealthServer struct {
	port   int
	server *grpc.Server
	health *health.Server
}

// NewHealthServer creates a health server. Overall status and the catalog
// service start as SERVING.
func NewHealthServer(port int) *HealthServer {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(CatalogService, healthpb.HealthCheckResponse_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &HealthServer{port: port, server: srv, health: hs}
}

// OnBreakerChange is a breaker subscriber updating the catalog status.
func (s *HealthServer) OnBreakerChange(change resilience.StateChange) {
	s.health.SetServingStatus(CatalogService, statusFor(change.To))
}

// Start listens and serves until Stop is called.
func (s *HealthServer) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port %d: %w", s.port, err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener.
func (s *HealthServer) Serve(lis net.Listener) error {
	slog.Info("gRPC health server listening", "addr", lis.Addr().String())
	return s.server.Serve(lis)
}

// Stop drains the server, forcing it down when ctx expires.
func (s *HealthServer) Stop(ctx context.Context) error {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return ctx.Err()
	}
}

func statusFor(state resilience.State) healthpb.HealthCheckResponse_ServingStatus {
	if state == resilience.StateOpen {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}
