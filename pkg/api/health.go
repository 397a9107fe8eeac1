package api

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cuemby/canopy/pkg/log"
	"github.com/cuemby/canopy/pkg/metrics"
)

// ServiceName is the gRPC health service name reporting canopy readiness.
// The empty name reports the same status.
const ServiceName = "canopy.UIDL"

// AdminServer exposes the standard gRPC health service for load balancers
// and orchestrators. Its status follows the readiness report of the
// metrics package.
type AdminServer struct {
	grpc     *grpc.Server
	health   *health.Server
	interval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	logger   zerolog.Logger
}

// NewAdminServer creates the admin server. interval is how often the
// readiness report is re-evaluated.
func NewAdminServer(interval time.Duration) *AdminServer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	logger := log.WithComponent("admin")
	s := &AdminServer{
		grpc:     grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor(logger))),
		health:   health.NewServer(),
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Start listens on addr and serves until Stop is called
func (s *AdminServer) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener
func (s *AdminServer) Serve(lis net.Listener) error {
	go s.watch()
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("Admin gRPC listening")
	err := s.grpc.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Stop marks every service as not serving and stops the server
func (s *AdminServer) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// Health returns the health service, for in-process checks
func (s *AdminServer) Health() healthpb.HealthServer {
	return s.health
}

func (s *AdminServer) watch() {
	s.sync()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sync()
		case <-s.stopCh:
			return
		}
	}
}

// sync copies the readiness report into the health service
func (s *AdminServer) sync() healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	ready := metrics.GetReadiness()
	if ready.Status == "ready" {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}
