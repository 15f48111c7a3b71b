// Package rpcapi hand-registers the daemon's gRPC surface against
// grpc-go's public ServiceDesc/MethodDesc/StreamDesc API -- the same shape
// protoc-gen-go-grpc emits -- paired with a small JSON codec standing in
// for compiled protobuf messages, since this retrieval pack carried no
// generated .pb.go stubs. Transport is a unix-domain socket per spec.md §5.
package rpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/jsbattig/cidx/pkg/cidxtypes"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

const serviceName = "cidx.DaemonAPI"

// Backend is implemented by pkg/daemon.Daemon; rpcapi only knows about
// this interface, keeping the transport and the daemon's internals
// separate the way the teacher separates pkg/api from pkg/manager.
type Backend interface {
	Query(ctx context.Context, req QueryRequest) (QueryResponse, error)
	QueryFTS(ctx context.Context, req QueryRequest) (QueryResponse, error)
	QueryHybrid(ctx context.Context, req QueryRequest) (QueryResponse, error)
	Index(ctx context.Context, req IndexRequest, progress func(cidxtypes.ProgressEvent)) (IndexResponse, error)
	WatchStart(ctx context.Context, req WatchStartRequest, progress func(cidxtypes.ProgressEvent)) (WatchStartResponse, error)
	WatchStop(ctx context.Context, req RepoRequest) (WatchStopResponse, error)
	WatchStatus(ctx context.Context) (WatchStatusResponse, error)
	Clean(ctx context.Context, req CleanRequest) (CleanResponse, error)
	CleanData(ctx context.Context, req CleanRequest) (CleanResponse, error)
	Status(ctx context.Context, req RepoRequest) (StatusResponse, error)
	GetStatus(ctx context.Context) (GetStatusResponse, error)
	ClearCache(ctx context.Context) (SimpleStatusResponse, error)
	Shutdown(ctx context.Context) (SimpleStatusResponse, error)
}

func queryHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler(srv, ctx, dec, interceptor, "Query", func(b Backend, ctx context.Context, req QueryRequest) (interface{}, error) {
		return b.Query(ctx, req)
	})
}

func queryFTSHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler(srv, ctx, dec, interceptor, "QueryFTS", func(b Backend, ctx context.Context, req QueryRequest) (interface{}, error) {
		return b.QueryFTS(ctx, req)
	})
}

func queryHybridHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler(srv, ctx, dec, interceptor, "QueryHybrid", func(b Backend, ctx context.Context, req QueryRequest) (interface{}, error) {
		return b.QueryHybrid(ctx, req)
	})
}

func watchStopHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler(srv, ctx, dec, interceptor, "WatchStop", func(b Backend, ctx context.Context, req RepoRequest) (interface{}, error) {
		return b.WatchStop(ctx, req)
	})
}

func watchStatusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler(srv, ctx, dec, interceptor, "WatchStatus", func(b Backend, ctx context.Context, _ RepoRequest) (interface{}, error) {
		return b.WatchStatus(ctx)
	})
}

func cleanHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler(srv, ctx, dec, interceptor, "Clean", func(b Backend, ctx context.Context, req CleanRequest) (interface{}, error) {
		return b.Clean(ctx, req)
	})
}

func cleanDataHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler(srv, ctx, dec, interceptor, "CleanData", func(b Backend, ctx context.Context, req CleanRequest) (interface{}, error) {
		return b.CleanData(ctx, req)
	})
}

func statusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler(srv, ctx, dec, interceptor, "Status", func(b Backend, ctx context.Context, req RepoRequest) (interface{}, error) {
		return b.Status(ctx, req)
	})
}

func getStatusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler(srv, ctx, dec, interceptor, "GetStatus", func(b Backend, ctx context.Context, _ RepoRequest) (interface{}, error) {
		return b.GetStatus(ctx)
	})
}

func clearCacheHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler(srv, ctx, dec, interceptor, "ClearCache", func(b Backend, ctx context.Context, _ RepoRequest) (interface{}, error) {
		return b.ClearCache(ctx)
	})
}

func shutdownHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler(srv, ctx, dec, interceptor, "Shutdown", func(b Backend, ctx context.Context, _ RepoRequest) (interface{}, error) {
		return b.Shutdown(ctx)
	})
}

// unaryHandler decodes req into a fresh T, invokes call through the
// interceptor chain, and returns whatever call produces.
func unaryHandler[T any](srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor, method string, call func(Backend, context.Context, T) (interface{}, error)) (interface{}, error) {
	b, ok := srv.(Backend)
	if !ok {
		return nil, status.Error(codes.Internal, "rpcapi: server does not implement Backend")
	}
	var req T
	if err := dec(&req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return call(b, ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
	return interceptor(ctx, req, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return call(b, ctx, req.(T))
	})
}

func indexStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	b, ok := srv.(Backend)
	if !ok {
		return status.Error(codes.Internal, "rpcapi: server does not implement Backend")
	}
	var req IndexRequest
	if err := stream.RecvMsg(&req); err != nil {
		return err
	}
	resp, err := b.Index(stream.Context(), req, func(ev cidxtypes.ProgressEvent) {
		_ = stream.SendMsg(&StreamEnvelope{Progress: &ev})
	})
	if err != nil {
		return err
	}
	return stream.SendMsg(&StreamEnvelope{Index: &resp})
}

func watchStartStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	b, ok := srv.(Backend)
	if !ok {
		return status.Error(codes.Internal, "rpcapi: server does not implement Backend")
	}
	var req WatchStartRequest
	if err := stream.RecvMsg(&req); err != nil {
		return err
	}
	resp, err := b.WatchStart(stream.Context(), req, func(ev cidxtypes.ProgressEvent) {
		_ = stream.SendMsg(&StreamEnvelope{Progress: &ev})
	})
	if err != nil {
		return err
	}
	return stream.SendMsg(&StreamEnvelope{Watch: &resp})
}

// ServiceDesc is registered against a *grpc.Server via
// grpc.Server.RegisterService(&ServiceDesc, backend).
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Backend)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Query", Handler: queryHandler},
		{MethodName: "QueryFTS", Handler: queryFTSHandler},
		{MethodName: "QueryHybrid", Handler: queryHybridHandler},
		{MethodName: "WatchStop", Handler: watchStopHandler},
		{MethodName: "WatchStatus", Handler: watchStatusHandler},
		{MethodName: "Clean", Handler: cleanHandler},
		{MethodName: "CleanData", Handler: cleanDataHandler},
		{MethodName: "Status", Handler: statusHandler},
		{MethodName: "GetStatus", Handler: getStatusHandler},
		{MethodName: "ClearCache", Handler: clearCacheHandler},
		{MethodName: "Shutdown", Handler: shutdownHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Index", Handler: indexStreamHandler, ServerStreams: true},
		{StreamName: "WatchStart", Handler: watchStartStreamHandler, ServerStreams: true},
	},
	Metadata: "rpcapi.proto",
}
