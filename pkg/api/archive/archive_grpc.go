// Package archive carries the generated-shape client/server stubs for
// the Archive service: Check (unary), Pull (server-streaming), Push
// (client-streaming). Hand-written in the shape protoc-gen-go-grpc
// would emit, grounded on the real Vorpal Go SDK's own generated
// agent_grpc.pb.go, but carrying the plain structs in pkg/api over the
// rpcjson codec instead of protobuf-generated message types.
package archive

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vorpalbuild/vorpal/pkg/api"
	"github.com/vorpalbuild/vorpal/pkg/rpcjson"
)

const (
	checkMethod = "/vorpal.archive.ArchiveService/Check"
	pullMethod  = "/vorpal.archive.ArchiveService/Pull"
	pushMethod  = "/vorpal.archive.ArchiveService/Push"
)

// ArchiveServiceClient is the client API for ArchiveService.
type ArchiveServiceClient interface {
	Check(ctx context.Context, in *api.ArchivePullRequest, opts ...grpc.CallOption) (*api.ArchiveResponse, error)
	Pull(ctx context.Context, in *api.ArchivePullRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[api.ArchivePullResponse], error)
	Push(ctx context.Context, opts ...grpc.CallOption) (grpc.ClientStreamingClient[api.ArchivePushRequest, api.ArchiveResponse], error)
}

type archiveServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewArchiveServiceClient(cc grpc.ClientConnInterface) ArchiveServiceClient {
	return &archiveServiceClient{cc}
}

func (c *archiveServiceClient) Check(ctx context.Context, in *api.ArchivePullRequest, opts ...grpc.CallOption) (*api.ArchiveResponse, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(rpcjson.Name)}, opts...)
	out := new(api.ArchiveResponse)
	if err := c.cc.Invoke(ctx, checkMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *archiveServiceClient) Pull(ctx context.Context, in *api.ArchivePullRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[api.ArchivePullResponse], error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(rpcjson.Name)}, opts...)
	stream, err := c.cc.NewStream(ctx, &ArchiveService_ServiceDesc.Streams[0], pullMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[api.ArchivePullRequest, api.ArchivePullResponse]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *archiveServiceClient) Push(ctx context.Context, opts ...grpc.CallOption) (grpc.ClientStreamingClient[api.ArchivePushRequest, api.ArchiveResponse], error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(rpcjson.Name)}, opts...)
	stream, err := c.cc.NewStream(ctx, &ArchiveService_ServiceDesc.Streams[1], pushMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[api.ArchivePushRequest, api.ArchiveResponse]{ClientStream: stream}
	return x, nil
}

// ArchiveServiceServer is the server API for ArchiveService.
type ArchiveServiceServer interface {
	Check(context.Context, *api.ArchivePullRequest) (*api.ArchiveResponse, error)
	Pull(*api.ArchivePullRequest, grpc.ServerStreamingServer[api.ArchivePullResponse]) error
	Push(grpc.ClientStreamingServer[api.ArchivePushRequest, api.ArchiveResponse]) error
	mustEmbedUnimplementedArchiveServiceServer()
}

// UnimplementedArchiveServiceServer must be embedded for forward compatibility.
type UnimplementedArchiveServiceServer struct{}

func (UnimplementedArchiveServiceServer) Check(context.Context, *api.ArchivePullRequest) (*api.ArchiveResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Check not implemented")
}
func (UnimplementedArchiveServiceServer) Pull(*api.ArchivePullRequest, grpc.ServerStreamingServer[api.ArchivePullResponse]) error {
	return status.Error(codes.Unimplemented, "method Pull not implemented")
}
func (UnimplementedArchiveServiceServer) Push(grpc.ClientStreamingServer[api.ArchivePushRequest, api.ArchiveResponse]) error {
	return status.Error(codes.Unimplemented, "method Push not implemented")
}
func (UnimplementedArchiveServiceServer) mustEmbedUnimplementedArchiveServiceServer() {}

// RegisterArchiveServiceServer registers srv with s.
func RegisterArchiveServiceServer(s grpc.ServiceRegistrar, srv ArchiveServiceServer) {
	s.RegisterService(&ArchiveService_ServiceDesc, srv)
}

func _ArchiveService_Check_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(api.ArchivePullRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ArchiveServiceServer).Check(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: checkMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ArchiveServiceServer).Check(ctx, req.(*api.ArchivePullRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ArchiveService_Pull_Handler(srv interface{}, stream grpc.ServerStream) error {
	in := new(api.ArchivePullRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ArchiveServiceServer).Pull(in, &grpc.GenericServerStream[api.ArchivePullRequest, api.ArchivePullResponse]{ServerStream: stream})
}

func _ArchiveService_Push_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(ArchiveServiceServer).Push(&grpc.GenericServerStream[api.ArchivePushRequest, api.ArchiveResponse]{ServerStream: stream})
}

// ArchiveService_ServiceDesc is the grpc.ServiceDesc for ArchiveService.
var ArchiveService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "vorpal.archive.ArchiveService",
	HandlerType: (*ArchiveServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Check", Handler: _ArchiveService_Check_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Pull", Handler: _ArchiveService_Pull_Handler, ServerStreams: true},
		{StreamName: "Push", Handler: _ArchiveService_Push_Handler, ClientStreams: true},
	},
	Metadata: "vorpal/archive.proto",
}
