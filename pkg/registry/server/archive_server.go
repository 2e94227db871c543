// Package server implements the Archive and Artifact gRPC services on
// top of a pluggable registry.backend, adding the scope-based
// authorization and TTL existence-cache policy the backends
// themselves stay agnostic of.
package server

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/vorpalbuild/vorpal/pkg/api"
	archivegrpc "github.com/vorpalbuild/vorpal/pkg/api/archive"
	"github.com/vorpalbuild/vorpal/pkg/authn"
	vorpalerrors "github.com/vorpalbuild/vorpal/pkg/errors"
	"github.com/vorpalbuild/vorpal/pkg/registry/backend"
)

// DefaultCheckCacheTTL is the existence-cache lifetime used when a
// caller does not override it. A TTL of 0 disables caching entirely.
const DefaultCheckCacheTTL = 300 * time.Second

// toGRPCErr converts a backend's *vorpalerrors.Error into the gRPC
// status error a stream or unary handler must terminate with, passing
// any other error through as an internal status.
func toGRPCErr(err error) error {
	if err == nil {
		return nil
	}
	if ve, ok := err.(*vorpalerrors.Error); ok {
		return ve.ToStatus().Err()
	}
	return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "backend error", err).ToStatus().Err()
}

// ArchiveServer adapts a backend.ArchiveBackend to ArchiveServiceServer.
type ArchiveServer struct {
	archivegrpc.UnimplementedArchiveServiceServer

	Backend backend.ArchiveBackend
	Log     *logrus.Logger

	cache *checkCache
}

// NewArchiveServer builds a server with a check cache of the given TTL.
func NewArchiveServer(b backend.ArchiveBackend, cacheTTL time.Duration, log *logrus.Logger) *ArchiveServer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithField("ttl_seconds", cacheTTL.Seconds()).Info("registry: archive server initializing check cache")
	return &ArchiveServer{Backend: b, Log: log, cache: newCheckCache(cacheTTL)}
}

func (s *ArchiveServer) Check(ctx context.Context, req *api.ArchivePullRequest) (*api.ArchiveResponse, error) {
	if req.Digest == "" {
		return nil, vorpalerrors.New(vorpalerrors.ErrCodeInvalidArgument, "missing digest field").ToStatus().Err()
	}
	if claims, ok := authn.ClaimsFromContext(ctx); ok {
		if !claims.CanRead("archive") {
			return nil, vorpalerrors.New(vorpalerrors.ErrCodePermissionDenied, "read access to archive namespace denied").ToStatus().Err()
		}
	}

	key := req.Namespace + "/" + req.Digest
	if exists, hit := s.cache.get(key); hit {
		s.Log.WithFields(logrus.Fields{"digest": req.Digest, "exists": exists}).Debug("registry: archive check cache hit")
		if exists {
			return &api.ArchiveResponse{Digest: req.Digest}, nil
		}
		return nil, vorpalerrors.NotFoundError("archive", req.Digest).ToStatus().Err()
	}

	err := s.Backend.Check(ctx, req.Namespace, req.Digest)
	exists := err == nil
	s.cache.set(key, exists)
	if !exists {
		return nil, toGRPCErr(err)
	}
	s.Log.WithField("digest", req.Digest).Info("registry: archive check")
	return &api.ArchiveResponse{Digest: req.Digest}, nil
}

func (s *ArchiveServer) Pull(req *api.ArchivePullRequest, stream grpc.ServerStreamingServer[api.ArchivePullResponse]) error {
	ctx := stream.Context()
	if req.Digest == "" {
		return vorpalerrors.New(vorpalerrors.ErrCodeInvalidArgument, "missing digest field").ToStatus().Err()
	}
	if claims, ok := authn.ClaimsFromContext(ctx); ok {
		if !claims.CanRead("archive") {
			return vorpalerrors.New(vorpalerrors.ErrCodePermissionDenied, "read access to archive namespace denied").ToStatus().Err()
		}
	}

	pr, pw := io.Pipe()
	errc := make(chan error, 1)
	go func() {
		errc <- s.Backend.Pull(ctx, req.Namespace, req.Digest, pw)
		pw.Close()
	}()

	buf := make([]byte, 2*1024*1024)
	for {
		n, rerr := pr.Read(buf)
		if n > 0 {
			if err := stream.Send(&api.ArchivePullResponse{Data: append([]byte(nil), buf[:n]...)}); err != nil {
				return err
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "stream archive", rerr).ToStatus().Err()
		}
	}
	if err := <-errc; err != nil {
		return toGRPCErr(err)
	}
	s.Log.WithField("digest", req.Digest).Info("registry: archive pull")
	return nil
}

func (s *ArchiveServer) Push(stream grpc.ClientStreamingServer[api.ArchivePushRequest, api.ArchiveResponse]) error {
	var buf bytes.Buffer
	var namespace, digest string
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "receive archive push", err).ToStatus().Err()
		}
		buf.Write(chunk.Data)
		namespace = chunk.Namespace
		digest = chunk.Digest
	}

	if buf.Len() == 0 {
		return vorpalerrors.New(vorpalerrors.ErrCodeInvalidArgument, "missing data field").ToStatus().Err()
	}
	if digest == "" {
		return vorpalerrors.New(vorpalerrors.ErrCodeInvalidArgument, "missing digest field").ToStatus().Err()
	}

	ctx := stream.Context()
	if claims, ok := authn.ClaimsFromContext(ctx); ok {
		if !claims.CanWrite("archive") {
			return vorpalerrors.New(vorpalerrors.ErrCodePermissionDenied, "write access to archive namespace denied").ToStatus().Err()
		}
	}

	if err := s.Backend.Push(ctx, namespace, digest, buf.Bytes()); err != nil {
		return toGRPCErr(err)
	}

	s.cache.set(namespace+"/"+digest, true)
	s.Log.WithField("digest", digest).Info("registry: archive push")
	return stream.SendAndClose(&api.ArchiveResponse{Digest: digest})
}
