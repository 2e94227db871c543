// Package artifactsvc carries the generated-shape stubs for the
// Artifact service: GetArtifact, GetArtifactAlias, StoreArtifact — all
// unary RPCs, following the same pattern as package archive.
package artifactsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vorpalbuild/vorpal/pkg/api"
	"github.com/vorpalbuild/vorpal/pkg/artifact"
	"github.com/vorpalbuild/vorpal/pkg/rpcjson"
)

const (
	getArtifactMethod      = "/vorpal.artifact.ArtifactService/GetArtifact"
	getArtifactAliasMethod = "/vorpal.artifact.ArtifactService/GetArtifactAlias"
	storeArtifactMethod    = "/vorpal.artifact.ArtifactService/StoreArtifact"
)

type ArtifactServiceClient interface {
	GetArtifact(ctx context.Context, in *api.ArtifactRequest, opts ...grpc.CallOption) (*artifact.Artifact, error)
	GetArtifactAlias(ctx context.Context, in *api.GetArtifactAliasRequest, opts ...grpc.CallOption) (*api.GetArtifactAliasResponse, error)
	StoreArtifact(ctx context.Context, in *api.StoreArtifactRequest, opts ...grpc.CallOption) (*api.ArtifactResponse, error)
}

type artifactServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewArtifactServiceClient(cc grpc.ClientConnInterface) ArtifactServiceClient {
	return &artifactServiceClient{cc}
}

func (c *artifactServiceClient) GetArtifact(ctx context.Context, in *api.ArtifactRequest, opts ...grpc.CallOption) (*artifact.Artifact, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(rpcjson.Name)}, opts...)
	out := new(artifact.Artifact)
	if err := c.cc.Invoke(ctx, getArtifactMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *artifactServiceClient) GetArtifactAlias(ctx context.Context, in *api.GetArtifactAliasRequest, opts ...grpc.CallOption) (*api.GetArtifactAliasResponse, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(rpcjson.Name)}, opts...)
	out := new(api.GetArtifactAliasResponse)
	if err := c.cc.Invoke(ctx, getArtifactAliasMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *artifactServiceClient) StoreArtifact(ctx context.Context, in *api.StoreArtifactRequest, opts ...grpc.CallOption) (*api.ArtifactResponse, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(rpcjson.Name)}, opts...)
	out := new(api.ArtifactResponse)
	if err := c.cc.Invoke(ctx, storeArtifactMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type ArtifactServiceServer interface {
	GetArtifact(context.Context, *api.ArtifactRequest) (*artifact.Artifact, error)
	GetArtifactAlias(context.Context, *api.GetArtifactAliasRequest) (*api.GetArtifactAliasResponse, error)
	StoreArtifact(context.Context, *api.StoreArtifactRequest) (*api.ArtifactResponse, error)
	mustEmbedUnimplementedArtifactServiceServer()
}

type UnimplementedArtifactServiceServer struct{}

func (UnimplementedArtifactServiceServer) GetArtifact(context.Context, *api.ArtifactRequest) (*artifact.Artifact, error) {
	return nil, status.Error(codes.Unimplemented, "method GetArtifact not implemented")
}
func (UnimplementedArtifactServiceServer) GetArtifactAlias(context.Context, *api.GetArtifactAliasRequest) (*api.GetArtifactAliasResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetArtifactAlias not implemented")
}
func (UnimplementedArtifactServiceServer) StoreArtifact(context.Context, *api.StoreArtifactRequest) (*api.ArtifactResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method StoreArtifact not implemented")
}
func (UnimplementedArtifactServiceServer) mustEmbedUnimplementedArtifactServiceServer() {}

func RegisterArtifactServiceServer(s grpc.ServiceRegistrar, srv ArtifactServiceServer) {
	s.RegisterService(&ArtifactService_ServiceDesc, srv)
}

func _ArtifactService_GetArtifact_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(api.ArtifactRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ArtifactServiceServer).GetArtifact(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getArtifactMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ArtifactServiceServer).GetArtifact(ctx, req.(*api.ArtifactRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ArtifactService_GetArtifactAlias_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(api.GetArtifactAliasRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ArtifactServiceServer).GetArtifactAlias(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getArtifactAliasMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ArtifactServiceServer).GetArtifactAlias(ctx, req.(*api.GetArtifactAliasRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ArtifactService_StoreArtifact_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(api.StoreArtifactRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ArtifactServiceServer).StoreArtifact(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: storeArtifactMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ArtifactServiceServer).StoreArtifact(ctx, req.(*api.StoreArtifactRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var ArtifactService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "vorpal.artifact.ArtifactService",
	HandlerType: (*ArtifactServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetArtifact", Handler: _ArtifactService_GetArtifact_Handler},
		{MethodName: "GetArtifactAlias", Handler: _ArtifactService_GetArtifactAlias_Handler},
		{MethodName: "StoreArtifact", Handler: _ArtifactService_StoreArtifact_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vorpal/artifact.proto",
}
