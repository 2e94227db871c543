package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vorpalbuild/vorpal/pkg/api"
	"github.com/vorpalbuild/vorpal/pkg/artifact"
	vorpalerrors "github.com/vorpalbuild/vorpal/pkg/errors"
)

type mockArtifactBackend struct {
	art    *artifact.Artifact
	alias  string
	digest string
}

func (m *mockArtifactBackend) GetArtifact(ctx context.Context, namespace, digest string) (*artifact.Artifact, error) {
	if m.art == nil {
		return nil, vorpalerrors.NotFoundError("artifact", digest)
	}
	return m.art, nil
}

func (m *mockArtifactBackend) GetArtifactAlias(ctx context.Context, namespace, system, name, tag string) (string, error) {
	if m.alias == "" {
		return "", vorpalerrors.NotFoundError("alias", name)
	}
	return m.alias, nil
}

func (m *mockArtifactBackend) StoreArtifact(ctx context.Context, namespace string, art *artifact.Artifact, aliases []string) (string, error) {
	return m.digest, nil
}

func TestArtifactServerGetArtifact(t *testing.T) {
	art := &artifact.Artifact{Name: "hello", Target: artifact.SystemX8664Linux, Steps: []artifact.Step{{Entrypoint: "bash"}}}
	srv := NewArtifactServer(&mockArtifactBackend{art: art}, silentLogger())

	got, err := srv.GetArtifact(context.Background(), &api.ArtifactRequest{Namespace: "ns", Digest: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Name)
}

func TestArtifactServerGetArtifactMissingDigest(t *testing.T) {
	srv := NewArtifactServer(&mockArtifactBackend{}, silentLogger())

	_, err := srv.GetArtifact(context.Background(), &api.ArtifactRequest{Namespace: "ns", Digest: ""})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestArtifactServerGetArtifactNotFound(t *testing.T) {
	srv := NewArtifactServer(&mockArtifactBackend{}, silentLogger())

	_, err := srv.GetArtifact(context.Background(), &api.ArtifactRequest{Namespace: "ns", Digest: "abc"})
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestArtifactServerGetArtifactAlias(t *testing.T) {
	srv := NewArtifactServer(&mockArtifactBackend{alias: "deadbeef"}, silentLogger())

	resp, err := srv.GetArtifactAlias(context.Background(), &api.GetArtifactAliasRequest{
		Namespace: "ns", System: "X8664Linux", Name: "hello", Tag: "latest",
	})
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", resp.Digest)
}

func TestArtifactServerStoreArtifactRequiresArtifact(t *testing.T) {
	srv := NewArtifactServer(&mockArtifactBackend{digest: "abc"}, silentLogger())

	_, err := srv.StoreArtifact(context.Background(), &api.StoreArtifactRequest{ArtifactNamespace: "ns"})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestArtifactServerStoreArtifact(t *testing.T) {
	art := &artifact.Artifact{Name: "hello", Target: artifact.SystemX8664Linux, Steps: []artifact.Step{{Entrypoint: "bash"}}}
	srv := NewArtifactServer(&mockArtifactBackend{digest: "abc123"}, silentLogger())

	resp, err := srv.StoreArtifact(context.Background(), &api.StoreArtifactRequest{Artifact: art, ArtifactNamespace: "ns"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", resp.Digest)
}
