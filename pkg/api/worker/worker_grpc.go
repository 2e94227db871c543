// Package worker carries the generated-shape client/server stubs for
// the Worker service's single RPC: BuildArtifact, a server-streaming
// call that reports build progress lines (step output, publish status)
// before the stream closes.
package worker

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vorpalbuild/vorpal/pkg/api"
	"github.com/vorpalbuild/vorpal/pkg/rpcjson"
)

const buildArtifactMethod = "/vorpal.worker.WorkerService/BuildArtifact"

type WorkerServiceClient interface {
	BuildArtifact(ctx context.Context, in *api.BuildArtifactRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[api.BuildArtifactResponse], error)
}

type workerServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewWorkerServiceClient(cc grpc.ClientConnInterface) WorkerServiceClient {
	return &workerServiceClient{cc}
}

func (c *workerServiceClient) BuildArtifact(ctx context.Context, in *api.BuildArtifactRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[api.BuildArtifactResponse], error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(rpcjson.Name)}, opts...)
	stream, err := c.cc.NewStream(ctx, &WorkerService_ServiceDesc.Streams[0], buildArtifactMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[api.BuildArtifactRequest, api.BuildArtifactResponse]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type WorkerServiceServer interface {
	BuildArtifact(*api.BuildArtifactRequest, grpc.ServerStreamingServer[api.BuildArtifactResponse]) error
	mustEmbedUnimplementedWorkerServiceServer()
}

type UnimplementedWorkerServiceServer struct{}

func (UnimplementedWorkerServiceServer) BuildArtifact(*api.BuildArtifactRequest, grpc.ServerStreamingServer[api.BuildArtifactResponse]) error {
	return status.Error(codes.Unimplemented, "method BuildArtifact not implemented")
}
func (UnimplementedWorkerServiceServer) mustEmbedUnimplementedWorkerServiceServer() {}

func RegisterWorkerServiceServer(s grpc.ServiceRegistrar, srv WorkerServiceServer) {
	s.RegisterService(&WorkerService_ServiceDesc, srv)
}

func _WorkerService_BuildArtifact_Handler(srv interface{}, stream grpc.ServerStream) error {
	in := new(api.BuildArtifactRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(WorkerServiceServer).BuildArtifact(in, &grpc.GenericServerStream[api.BuildArtifactRequest, api.BuildArtifactResponse]{ServerStream: stream})
}

var WorkerService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "vorpal.worker.WorkerService",
	HandlerType: (*WorkerServiceServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{StreamName: "BuildArtifact", Handler: _WorkerService_BuildArtifact_Handler, ServerStreams: true},
	},
	Metadata: "vorpal/worker.proto",
}
