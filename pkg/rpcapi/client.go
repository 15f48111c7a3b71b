package rpcapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Dial connects to the daemon's unix-domain socket, selecting the JSON
// content-subtype in place of compiled protobuf.
func Dial(ctx context.Context, socketPath string, timeout time.Duration) (*grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return grpc.DialContext(dialCtx, "unix:"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodec{}.Name())),
	)
}

// InvokeUnary issues one unary RPC by method name, decoding resp in place.
func InvokeUnary(ctx context.Context, cc *grpc.ClientConn, method string, req, resp interface{}) error {
	return cc.Invoke(ctx, "/"+serviceName+"/"+method, req, resp)
}

// OpenStream opens a server-streaming RPC by method name.
func OpenStream(ctx context.Context, cc *grpc.ClientConn, method string, desc *grpc.StreamDesc, req interface{}) (grpc.ClientStream, error) {
	stream, err := cc.NewStream(ctx, desc, "/"+serviceName+"/"+method)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return stream, nil
}

// IndexStreamDesc and WatchStartStreamDesc are the client-side stream
// descriptors matching ServiceDesc.Streams.
var (
	IndexStreamDesc      = &grpc.StreamDesc{StreamName: "Index", ServerStreams: true}
	WatchStartStreamDesc = &grpc.StreamDesc{StreamName: "WatchStart", ServerStreams: true}
)
