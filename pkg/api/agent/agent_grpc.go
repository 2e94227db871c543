// Package agent carries the generated-shape client/server stubs for
// the Agent service's single RPC: PrepareArtifact, a server-streaming
// call that reports preparation progress lines before its terminal
// message carries the resolved artifact and digest.
package agent

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vorpalbuild/vorpal/pkg/api"
	"github.com/vorpalbuild/vorpal/pkg/rpcjson"
)

const prepareArtifactMethod = "/vorpal.agent.AgentService/PrepareArtifact"

type AgentServiceClient interface {
	PrepareArtifact(ctx context.Context, in *api.PrepareArtifactRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[api.PrepareArtifactResponse], error)
}

type agentServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewAgentServiceClient(cc grpc.ClientConnInterface) AgentServiceClient {
	return &agentServiceClient{cc}
}

func (c *agentServiceClient) PrepareArtifact(ctx context.Context, in *api.PrepareArtifactRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[api.PrepareArtifactResponse], error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(rpcjson.Name)}, opts...)
	stream, err := c.cc.NewStream(ctx, &AgentService_ServiceDesc.Streams[0], prepareArtifactMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[api.PrepareArtifactRequest, api.PrepareArtifactResponse]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type AgentServiceServer interface {
	PrepareArtifact(*api.PrepareArtifactRequest, grpc.ServerStreamingServer[api.PrepareArtifactResponse]) error
	mustEmbedUnimplementedAgentServiceServer()
}

type UnimplementedAgentServiceServer struct{}

func (UnimplementedAgentServiceServer) PrepareArtifact(*api.PrepareArtifactRequest, grpc.ServerStreamingServer[api.PrepareArtifactResponse]) error {
	return status.Error(codes.Unimplemented, "method PrepareArtifact not implemented")
}
func (UnimplementedAgentServiceServer) mustEmbedUnimplementedAgentServiceServer() {}

func RegisterAgentServiceServer(s grpc.ServiceRegistrar, srv AgentServiceServer) {
	s.RegisterService(&AgentService_ServiceDesc, srv)
}

func _AgentService_PrepareArtifact_Handler(srv interface{}, stream grpc.ServerStream) error {
	in := new(api.PrepareArtifactRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(AgentServiceServer).PrepareArtifact(in, &grpc.GenericServerStream[api.PrepareArtifactRequest, api.PrepareArtifactResponse]{ServerStream: stream})
}

var AgentService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "vorpal.agent.AgentService",
	HandlerType: (*AgentServiceServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{StreamName: "PrepareArtifact", Handler: _AgentService_PrepareArtifact_Handler, ServerStreams: true},
	},
	Metadata: "vorpal/agent.proto",
}
