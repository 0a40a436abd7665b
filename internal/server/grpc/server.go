package grpcserver

import (
	"context"
	"net"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Server owns the gRPC server instance.
type Server struct {
	grpc *grpc.Server
	lis  net.Listener
}

// New constructs a gRPC server and registers services.
func New(rt HealthChecker, opts ...grpc.ServerOption) *Server {
	s := &Server{grpc: grpc.NewServer(opts...)}
	healthpb.RegisterHealthServer(s.grpc, &healthSvc{rt: rt})
	reflection.Register(s.grpc)
	return s
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(l) }()
	select {
	case <-ctx.Done():
		s.grpc.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Close stops the server and closes the listener.
func (s *Server) Close() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
	if s.lis != nil {
		_ = s.lis.Close()
	}
}
