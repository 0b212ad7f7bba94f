package grpcx

import (
	"context"
	"log/slog"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server is a gRPC server with tracing, request ids and the standard health service.
type Server struct {
	*grpc.Server
	Health *health.Server
	logger *slog.Logger
}

func NewServer(logger *slog.Logger, opts ...grpc.ServerOption) *Server {
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerLoggingInterceptor(logger),
		),
	}
	srv := grpc.NewServer(append(base, opts...)...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &Server{Server: srv, Health: hs, logger: logger}
}

// Serve runs on lis until ctx is done, then flips every service to
// NOT_SERVING and stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) {
	go func() {
		<-ctx.Done()
		s.Health.Shutdown()
		s.GracefulStop()
	}()

	s.logger.Info("grpc server starting", "addr", lis.Addr().String())
	if err := s.Server.Serve(lis); err != nil {
		s.logger.Error("grpc server error", "err", err)
	}
}
