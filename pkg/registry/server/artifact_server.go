package server

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/vorpalbuild/vorpal/pkg/api"
	artifactgrpc "github.com/vorpalbuild/vorpal/pkg/api/artifactsvc"
	"github.com/vorpalbuild/vorpal/pkg/artifact"
	"github.com/vorpalbuild/vorpal/pkg/authn"
	vorpalerrors "github.com/vorpalbuild/vorpal/pkg/errors"
	"github.com/vorpalbuild/vorpal/pkg/registry/backend"
)

// ArtifactServer adapts a backend.ArtifactBackend to ArtifactServiceServer.
type ArtifactServer struct {
	artifactgrpc.UnimplementedArtifactServiceServer

	Backend backend.ArtifactBackend
	Log     *logrus.Logger
}

func NewArtifactServer(b backend.ArtifactBackend, log *logrus.Logger) *ArtifactServer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ArtifactServer{Backend: b, Log: log}
}

func (s *ArtifactServer) GetArtifact(ctx context.Context, req *api.ArtifactRequest) (*artifact.Artifact, error) {
	if req.Digest == "" {
		return nil, vorpalerrors.New(vorpalerrors.ErrCodeInvalidArgument, "missing digest field").ToStatus().Err()
	}
	if claims, ok := authn.ClaimsFromContext(ctx); ok {
		if !claims.CanRead("artifact") {
			return nil, vorpalerrors.New(vorpalerrors.ErrCodePermissionDenied, "read access to artifact namespace denied").ToStatus().Err()
		}
	}

	art, err := s.Backend.GetArtifact(ctx, req.Namespace, req.Digest)
	if err != nil {
		return nil, toGRPCErr(err)
	}
	s.Log.WithField("digest", req.Digest).Info("artifact: get")
	return art, nil
}

func (s *ArtifactServer) GetArtifactAlias(ctx context.Context, req *api.GetArtifactAliasRequest) (*api.GetArtifactAliasResponse, error) {
	if claims, ok := authn.ClaimsFromContext(ctx); ok {
		if !claims.CanRead("artifact") {
			return nil, vorpalerrors.New(vorpalerrors.ErrCodePermissionDenied, "read access to artifact namespace denied").ToStatus().Err()
		}
	}

	digest, err := s.Backend.GetArtifactAlias(ctx, req.Namespace, req.System, req.Name, req.Tag)
	if err != nil {
		return nil, toGRPCErr(err)
	}
	s.Log.WithFields(logrus.Fields{"name": req.Name, "tag": req.Tag, "digest": digest}).Info("artifact: alias resolved")
	return &api.GetArtifactAliasResponse{Digest: digest}, nil
}

func (s *ArtifactServer) StoreArtifact(ctx context.Context, req *api.StoreArtifactRequest) (*api.ArtifactResponse, error) {
	if req.Artifact == nil {
		return nil, vorpalerrors.New(vorpalerrors.ErrCodeInvalidArgument, "missing artifact field").ToStatus().Err()
	}
	if claims, ok := authn.ClaimsFromContext(ctx); ok {
		if !claims.CanWrite("artifact") {
			return nil, vorpalerrors.New(vorpalerrors.ErrCodePermissionDenied, "write access to artifact namespace denied").ToStatus().Err()
		}
	}

	digest, err := s.Backend.StoreArtifact(ctx, req.ArtifactNamespace, req.Artifact, req.ArtifactAliases)
	if err != nil {
		return nil, toGRPCErr(err)
	}
	s.Log.WithField("digest", digest).Info("artifact: store")
	return &api.ArtifactResponse{Digest: digest}, nil
}
