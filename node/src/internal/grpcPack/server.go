package grpcPack

import (
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported for the key-value server
const ServiceName = "kvserver"

// HealthServer exposes the standard gRPC health checking protocol
type HealthServer struct {
	server *grpc.Server
	health *health.Server
	logger *zap.Logger
}

// NewHealthServer creates a health server. ServiceName starts as NOT_SERVING
// until SetServing is called.
func NewHealthServer(logger *zap.Logger) *HealthServer {
	if logger == nil {
		logger = zap.NewNop()
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryErrorInterceptor(logger)),
		grpc.ChainStreamInterceptor(StreamErrorInterceptor(logger)),
	)
	h := health.NewServer()
	h.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(server, h)

	return &HealthServer{server: server, health: h, logger: logger}
}

// SetServing reports whether the key-value server accepts connections
func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
	s.logger.Debug("health status changed", zap.String("status", status.String()))
}

// Serve serves health checks on ln until Stop
func (s *HealthServer) Serve(ln net.Listener) error {
	s.logger.Info("gRPC health server listening", zap.String("addr", ln.Addr().String()))
	return s.server.Serve(ln)
}

// Stop marks every service NOT_SERVING and stops the server gracefully
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
