package local

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vorpalbuild/vorpal/pkg/artifact"
	vorpalerrors "github.com/vorpalbuild/vorpal/pkg/errors"
	"github.com/vorpalbuild/vorpal/pkg/store"
)

func newTestBackend(t *testing.T) *Backend {
	return New(store.New(t.TempDir()))
}

func TestCheckNotFound(t *testing.T) {
	b := newTestBackend(t)
	err := b.Check(context.Background(), "ns", "deadbeef")
	require.Error(t, err)
	require.True(t, vorpalerrors.Is(err, vorpalerrors.ErrCodeNotFound))
}

func TestPushThenCheckThenPull(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Push(ctx, "ns", "d1", []byte("hello")))
	require.NoError(t, b.Check(ctx, "ns", "d1"))

	var buf bytes.Buffer
	require.NoError(t, b.Pull(ctx, "ns", "d1", &buf))
	require.Equal(t, "hello", buf.String())
}

func TestPushIsIdempotent(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Push(ctx, "ns", "d1", []byte("first")))
	require.NoError(t, b.Push(ctx, "ns", "d1", []byte("second")))

	var buf bytes.Buffer
	require.NoError(t, b.Pull(ctx, "ns", "d1", &buf))
	require.Equal(t, "first", buf.String())
}

func TestStoreAndGetArtifact(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	art := &artifact.Artifact{
		Name:    "hello",
		Target:  artifact.SystemX8664Linux,
		Systems: []artifact.System{artifact.SystemX8664Linux},
		Steps:   []artifact.Step{{Script: "echo hi"}},
	}
	digest, err := b.StoreArtifact(ctx, "ns", art, []string{"hello"})
	require.NoError(t, err)
	require.NotEmpty(t, digest)

	got, err := b.GetArtifact(ctx, "ns", digest)
	require.NoError(t, err)
	require.Equal(t, "hello", got.Name)

	aliasDigest, err := b.GetArtifactAlias(ctx, "ns", "X8664Linux", "hello", "latest")
	require.NoError(t, err)
	require.Equal(t, digest, aliasDigest)
}

func TestGetArtifactNotFound(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.GetArtifact(context.Background(), "ns", "missing")
	require.Error(t, err)
	require.True(t, vorpalerrors.Is(err, vorpalerrors.ErrCodeNotFound))
}
