package lockfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vorpalbuild/vorpal/pkg/api"
	"github.com/vorpalbuild/vorpal/pkg/store"
)

type mockArchiveClient struct {
	checkErr map[string]error
}

func (m *mockArchiveClient) Check(_ context.Context, in *api.ArchivePullRequest, _ ...grpc.CallOption) (*api.ArchiveResponse, error) {
	if err, ok := m.checkErr[in.Digest]; ok {
		return nil, err
	}
	return &api.ArchiveResponse{Digest: in.Digest}, nil
}

func (m *mockArchiveClient) Pull(_ context.Context, _ *api.ArchivePullRequest, _ ...grpc.CallOption) (grpc.ServerStreamingClient[api.ArchivePullResponse], error) {
	panic("not used by Verify")
}

func (m *mockArchiveClient) Push(_ context.Context, _ ...grpc.CallOption) (grpc.ClientStreamingClient[api.ArchivePushRequest, api.ArchiveResponse], error) {
	panic("not used by Verify")
}

func writeSourceFile(t *testing.T, dir, rel, contents string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(contents), 0o644))
}

func TestVerifyLocalSourceMatches(t *testing.T) {
	contextDir := t.TempDir()
	writeSourceFile(t, contextDir, "app/main.go", "package main")

	files, err := store.Enumerate(filepath.Join(contextDir, "app"), nil, nil)
	require.NoError(t, err)
	digest, err := store.HashSource(filepath.Join(contextDir, "app"), files)
	require.NoError(t, err)

	lf := &Lockfile{Lockfile: 1, Sources: []Source{
		{Name: "app", Platform: "X8664Linux", Path: "app", Digest: digest},
	}}

	mismatches, err := Verify(t.Context(), contextDir, "default", lf, &mockArchiveClient{})
	require.NoError(t, err)
	require.Empty(t, mismatches)
}

func TestVerifyLocalSourceMismatch(t *testing.T) {
	contextDir := t.TempDir()
	writeSourceFile(t, contextDir, "app/main.go", "package main")

	lf := &Lockfile{Lockfile: 1, Sources: []Source{
		{Name: "app", Platform: "X8664Linux", Path: "app", Digest: "stale-digest"},
	}}

	mismatches, err := Verify(t.Context(), contextDir, "default", lf, &mockArchiveClient{})
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	require.Equal(t, "app", mismatches[0].Name)
	require.Contains(t, mismatches[0].Reason, "digest mismatch")
}

func TestVerifyRemoteSourcePresent(t *testing.T) {
	contextDir := t.TempDir()
	lf := &Lockfile{Lockfile: 1, Sources: []Source{
		{Name: "upstream", Platform: "X8664Linux", Path: "https://example.com/archive.tar.gz", Digest: "abc123"},
	}}

	mismatches, err := Verify(t.Context(), contextDir, "default", lf, &mockArchiveClient{})
	require.NoError(t, err)
	require.Empty(t, mismatches)
}

func TestVerifyRemoteSourceNotFound(t *testing.T) {
	contextDir := t.TempDir()
	lf := &Lockfile{Lockfile: 1, Sources: []Source{
		{Name: "upstream", Platform: "X8664Linux", Path: "https://example.com/archive.tar.gz", Digest: "missing-digest"},
	}}

	client := &mockArchiveClient{checkErr: map[string]error{
		"missing-digest": status.Error(codes.NotFound, "not found"),
	}}

	mismatches, err := Verify(t.Context(), contextDir, "default", lf, client)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	require.Contains(t, mismatches[0].Reason, "not present in registry")
}

func TestVerifyRemoteSourceMissingDigest(t *testing.T) {
	contextDir := t.TempDir()
	lf := &Lockfile{Lockfile: 1, Sources: []Source{
		{Name: "upstream", Platform: "X8664Linux", Path: "https://example.com/archive.tar.gz"},
	}}

	mismatches, err := Verify(t.Context(), contextDir, "default", lf, &mockArchiveClient{})
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	require.Contains(t, mismatches[0].Reason, "missing digest")
}
