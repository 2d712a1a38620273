// Package grpcapi exposes the standard gRPC health service for platform probes.
package grpcapi

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"complexityofneed.org/internal/obs"
)

// ServiceName is the named service reported alongside the overall status "".
const ServiceName = "complexity-of-need"

// ReadinessFunc reports whether the service can take traffic.
type ReadinessFunc func(ctx context.Context) error

// HealthServer answers grpc.health.v1.Health/Check from a readiness probe.
type HealthServer struct {
	healthpb.UnimplementedHealthServer

	ready ReadinessFunc
	log   *slog.Logger
}

// NewHealthServer wraps ready. A nil probe always reports SERVING.
func NewHealthServer(ready ReadinessFunc, log *slog.Logger) *HealthServer {
	if ready == nil {
		ready = func(context.Context) error { return nil }
	}
	if log == nil {
		log = obs.Discard()
	}
	return &HealthServer{ready: ready, log: log}
}

// Check implements healthpb.HealthServer.
func (s *HealthServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	switch req.GetService() {
	case "", ServiceName:
	default:
		return nil, status.Errorf(codes.NotFound, "unknown service %q", req.GetService())
	}
	if err := s.ready(ctx); err != nil {
		s.log.WarnContext(ctx, "grpc health check failing", slog.Any("error", err))
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

// NewServer builds a gRPC server with the health service registered.
func NewServer(h *HealthServer, opts ...grpc.ServerOption) *grpc.Server {
	srv := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(srv, h)
	return srv
}
