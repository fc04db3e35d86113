package grpcserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	// ServiceName is the health entry reported for the bankroll service.
	ServiceName     = "bankroll.v1.Bankroll"
	defaultInterval = 15 * time.Second
	checkTimeout    = 2 * time.Second
)

// Checker probes a dependency; a nil error means healthy.
type Checker func(ctx context.Context) error

// HealthServer mirrors database reachability into the gRPC health protocol.
type HealthServer struct {
	health   *health.Server
	checker  Checker
	interval time.Duration
	logger   *zap.Logger
}

// NewHealthServer wraps grpc/health. A non-positive interval uses the default.
func NewHealthServer(checker Checker, interval time.Duration, logger *zap.Logger) *HealthServer {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	server := &HealthServer{
		health:   health.NewServer(),
		checker:  checker,
		interval: interval,
		logger:   logger,
	}
	server.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return server
}

// Register attaches the health service to a gRPC server.
func (server *HealthServer) Register(registrar grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(registrar, server.health)
}

// CheckOnce probes the dependency and publishes the result.
func (server *HealthServer) CheckOnce(ctx context.Context) bool {
	if server.checker == nil {
		server.set(healthpb.HealthCheckResponse_SERVING)
		return true
	}
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := server.checker(checkCtx); err != nil {
		server.logger.Warn("health check failed", zap.Error(err))
		server.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return false
	}
	server.set(healthpb.HealthCheckResponse_SERVING)
	return true
}

// Run probes immediately and then every interval until ctx is done, then marks everything not serving.
func (server *HealthServer) Run(ctx context.Context) {
	server.CheckOnce(ctx)
	ticker := time.NewTicker(server.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			server.health.Shutdown()
			return
		case <-ticker.C:
			server.CheckOnce(ctx)
		}
	}
}

func (server *HealthServer) set(status healthpb.HealthCheckResponse_ServingStatus) {
	server.health.SetServingStatus("", status)
	server.health.SetServingStatus(ServiceName, status)
}
