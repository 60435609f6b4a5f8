package grpcx

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/runtime"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewServer returns a gRPC server with tracing, request ids and the standard health
// service registered. The overall ("") and named service start as NOT_SERVING.
func NewServer(service string, extra ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(UnaryServerRequestIDInterceptor()),
	}
	opts = append(opts, extra...)

	srv := grpc.NewServer(opts...)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// HealthUpdater mirrors readiness checks into a health server.
type HealthUpdater struct {
	health   *health.Server
	service  string
	checks   []runtime.ReadyCheck
	interval time.Duration
	logger   *slog.Logger
}

func NewHealthUpdater(hs *health.Server, service string, interval time.Duration, logger *slog.Logger, checks ...runtime.ReadyCheck) *HealthUpdater {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &HealthUpdater{health: hs, service: service, checks: checks, interval: interval, logger: logger}
}

// Run refreshes the status immediately and then every interval until ctx is done,
// at which point everything is marked NOT_SERVING.
func (u *HealthUpdater) Run(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	u.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			u.health.Shutdown()
			return
		case <-ticker.C:
			u.Refresh(ctx)
		}
	}
}

func (u *HealthUpdater) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if failures := runtime.RunChecks(ctx, u.checks); len(failures) > 0 {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		u.logger.Warn("readiness check failed", "failures", strings.Join(failures, "; "))
	}
	u.health.SetServingStatus("", status)
	u.health.SetServingStatus(u.service, status)
	return status
}
