// Package grpcserver runs the operational gRPC endpoint: standard health checking
// driven by a backend ping, plus server reflection.
package grpcserver

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported alongside the overall status.
const ServiceName = "earnhire.v1.Entitlements"

// Pinger checks backend reachability.
type Pinger func(ctx context.Context) error

// Server wraps a grpc.Server with a health service.
type Server struct {
	gs     *grpc.Server
	health *health.Server
	ping   Pinger
	log    *zap.Logger
}

// New constructs the server with health and reflection registered.
func New(ping Pinger, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoverUnary(log),
			LoggingUnary(log),
		),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	s := &Server{gs: gs, health: hs, ping: ping, log: log}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Check pings the backend once and publishes the result.
func (s *Server) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if s.ping != nil {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.ping(pctx); err != nil {
			s.log.Warn("backend ping failed", zap.Error(err))
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.set(st)
	return st
}

// Watch re-checks health every interval until ctx is done.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	s.Check(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Check(ctx)
		}
	}
}

func (s *Server) set(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Serve blocks serving lis.
func (s *Server) Serve(lis net.Listener) error { return s.gs.Serve(lis) }

// GracefulStop marks every service NOT_SERVING and drains in-flight calls.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.gs.GracefulStop()
}
