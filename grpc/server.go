// Package grpc exposes the gateway's operational gRPC surface: the standard health service.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	grpc3 "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type Server struct {
	log    *slog.Logger
	server *grpc.Server
	health *health.Server
}

func NewServer(log *slog.Logger) *Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(grpc3.UnaryLoggingInterceptor(log)))
	hs := health.NewServer()
	// Not serving until the first probe round says otherwise.
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return &Server{log: log, server: s, health: hs}
}

// Health is the status sink of the health monitoring worker.
func (s *Server) Health() *health.Server {
	return s.health
}

// Serve blocks until the listener fails or the server is stopped.
func (s *Server) Serve(listener net.Listener) error {
	for serviceName := range s.server.GetServiceInfo() {
		s.log.Debug("gRPC exposed service", "name", serviceName)
	}
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("gRPC server error: %w", err)
	}
	return nil
}

// Stop flips every service to NOT_SERVING, then waits for in-flight calls
// until ctx expires.
func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()
	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		s.server.Stop()
	}
}
