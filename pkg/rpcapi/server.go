package rpcapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/jsbattig/cidx/pkg/cidxerr"
	"github.com/jsbattig/cidx/pkg/health"
)

// Server wraps a grpc.Server bound to a unix-domain socket, the daemon's
// sole transport per spec.md §5.
type Server struct {
	grpc *grpc.Server
	lis  net.Listener
	path string
}

// NewServer creates and binds a gRPC server at socketPath, registering
// backend against ServiceDesc. The bind itself is the singleton guarantee
// spec.md §5/§9 require: a second daemon for the same repo must fail to
// bind, not silently steal the socket out from under a live one. Listen is
// therefore attempted first; only on EADDRINUSE is the existing socket
// probed for liveness, and only a genuinely stale (unreachable) socket is
// removed and retried, per the StaleSocket recovery semantics in §7.
func NewServer(socketPath string, backend Backend) (*Server, error) {
	lis, err := bindSocket(socketPath)
	if err != nil {
		return nil, err
	}

	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(&ServiceDesc, backend)

	return &Server{grpc: grpcServer, lis: lis, path: socketPath}, nil
}

func bindSocket(socketPath string) (net.Listener, error) {
	lis, err := net.Listen("unix", socketPath)
	if err == nil {
		return lis, nil
	}
	if !errors.Is(err, syscall.EADDRINUSE) {
		return nil, fmt.Errorf("rpcapi: listen on %s: %w", socketPath, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	probe := health.NewSocketChecker(socketPath).Check(ctx)
	if probe.Healthy {
		return nil, cidxerr.New(cidxerr.AddressInUse,
			fmt.Sprintf("rpcapi: %s is already bound by a running daemon", socketPath))
	}

	if rmErr := os.Remove(socketPath); rmErr != nil && !os.IsNotExist(rmErr) {
		return nil, fmt.Errorf("rpcapi: remove stale socket %s: %w", socketPath, rmErr)
	}
	lis, err = net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("rpcapi: listen on %s after removing stale socket: %w", socketPath, err)
	}
	return lis, nil
}

// Serve blocks, accepting connections until Stop is called.
func (s *Server) Serve() error {
	return s.grpc.Serve(s.lis)
}

// Stop gracefully drains in-flight RPCs and removes the socket file.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
	_ = os.Remove(s.path)
}
