package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"storozh.org/internal/obs"
)

// HealthServer mirrors /readyz over the standard gRPC health protocol so
// orchestrators can probe the bot without HTTP.
type HealthServer struct {
	*health.Server

	readiness readinessChecker
}

// NewHealthServer creates the health service wrapper.
func NewHealthServer(r readinessChecker) *HealthServer {
	return &HealthServer{Server: health.NewServer(), readiness: r}
}

// Register attaches the health service to srv.
func (s *HealthServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.Server)
}

// Probe runs one readiness check and publishes the result.
func (s *HealthServer) Probe(ctx context.Context) bool {
	status := healthpb.HealthCheckResponse_SERVING
	ok := true
	if err := s.readiness.Check(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		ok = false
		obs.Warn("readiness probe failed", map[string]any{"error": err})
	}
	obs.SetReady(ok)
	s.SetServingStatus("", status)
	s.SetServingStatus(serviceName, status)
	return ok
}

// Run probes every interval until ctx is done, then marks the service as
// not serving.
func (s *HealthServer) Run(ctx context.Context, interval time.Duration) {
	s.Probe(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Shutdown()
			return
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}
