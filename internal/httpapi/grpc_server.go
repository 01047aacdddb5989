package httpapi

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type readinessChecker interface {
	Check(ctx context.Context) error
}

// GRPCServer exposes the standard gRPC health service on a secondary
// listener, mirroring the readiness probe the HTTP surface uses.
type GRPCServer struct {
	server *grpc.Server
	health *health.Server
}

// NewGRPCServer builds the gRPC server with health checking registered.
func NewGRPCServer(rc readinessChecker) *GRPCServer {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	g := &GRPCServer{server: srv, health: hs}
	go g.watch(rc)
	return g
}

// Serve blocks serving on the listener until Stop is called.
func (g *GRPCServer) Serve(lis net.Listener) error {
	return g.server.Serve(lis)
}

// Stop gracefully shuts the server down.
func (g *GRPCServer) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}

func (g *GRPCServer) watch(rc readinessChecker) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	g.update(rc)
	for range ticker.C {
		g.update(rc)
	}
}

func (g *GRPCServer) update(rc readinessChecker) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	status := healthpb.HealthCheckResponse_SERVING
	if rc != nil {
		if err := rc.Check(ctx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	g.health.SetServingStatus("", status)
}
