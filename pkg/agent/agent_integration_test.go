package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vorpalbuild/vorpal/pkg/api"
	archivegrpc "github.com/vorpalbuild/vorpal/pkg/api/archive"
	artifactgrpc "github.com/vorpalbuild/vorpal/pkg/api/artifactsvc"
	"github.com/vorpalbuild/vorpal/pkg/artifact"
	"github.com/vorpalbuild/vorpal/pkg/lockfile"
	"github.com/vorpalbuild/vorpal/pkg/notary"
	"github.com/vorpalbuild/vorpal/pkg/registry/backend"
	"github.com/vorpalbuild/vorpal/pkg/registry/backend/local"
	"github.com/vorpalbuild/vorpal/pkg/registry/server"
	"github.com/vorpalbuild/vorpal/pkg/store"
	"github.com/vorpalbuild/vorpal/pkg/transport"
)

// countingArchiveBackend wraps a real backend.ArchiveBackend to let
// tests assert a push was skipped on a repeat prepare, the way the
// teacher's own mock backends track call counts.
type countingArchiveBackend struct {
	backend.ArchiveBackend
	pushCalls int64
}

func (b *countingArchiveBackend) Push(ctx context.Context, namespace, digest string, data []byte) error {
	atomic.AddInt64(&b.pushCalls, 1)
	return b.ArchiveBackend.Push(ctx, namespace, digest, data)
}

func (b *countingArchiveBackend) pushCount() int64 { return atomic.LoadInt64(&b.pushCalls) }

func silentLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// startTestRegistry brings up a real TLS registry serving Archive and
// Artifact over a loopback TCP listener, mirroring the shared
// key-directory deployment where every plane trusts the same notary
// bootstrap. Returns the dial target and the identity the Agent/Worker
// under test must present to trust it.
func startTestRegistry(t *testing.T) (registryAddr string, identity *transport.Identity, archives *countingArchiveBackend) {
	t.Helper()

	boot, err := notary.GenerateBootstrap()
	require.NoError(t, err)
	id := &transport.Identity{CAPEM: boot.CACert, CertPEM: boot.ServiceCert, KeyPEM: boot.ServiceKey}

	st := store.New(t.TempDir())
	localBackend := local.New(st)
	counting := &countingArchiveBackend{ArchiveBackend: localBackend}

	grpcServer, err := transport.NewServer(id)
	require.NoError(t, err)

	archivegrpc.RegisterArchiveServiceServer(grpcServer, server.NewArchiveServer(counting, server.DefaultCheckCacheTTL, silentLogger()))
	artifactgrpc.RegisterArtifactServiceServer(grpcServer, server.NewArtifactServer(localBackend, silentLogger()))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go grpcServer.Serve(listener)
	t.Cleanup(grpcServer.Stop)

	return listener.Addr().String(), id, counting
}

// fakePrepareStream implements grpc.ServerStreamingServer[api.PrepareArtifactResponse]
// without an actual network connection, capturing every sent message.
type fakePrepareStream struct {
	ctx context.Context

	mu        sync.Mutex
	responses []*api.PrepareArtifactResponse
}

func newFakePrepareStream(t *testing.T) *fakePrepareStream {
	return &fakePrepareStream{ctx: t.Context()}
}

func (f *fakePrepareStream) Send(resp *api.PrepareArtifactResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakePrepareStream) SetHeader(metadata.MD) error  { return nil }
func (f *fakePrepareStream) SendHeader(metadata.MD) error { return nil }
func (f *fakePrepareStream) SetTrailer(metadata.MD)       {}
func (f *fakePrepareStream) Context() context.Context     { return f.ctx }
func (f *fakePrepareStream) SendMsg(any) error            { return nil }
func (f *fakePrepareStream) RecvMsg(any) error            { return nil }

// terminal returns the last message sent on the stream, which for
// PrepareArtifact always carries the resolved artifact and digest.
func (f *fakePrepareStream) terminal(t *testing.T) *api.PrepareArtifactResponse {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.responses)
	return f.responses[len(f.responses)-1]
}

func writeSourceFile(t *testing.T, dir, rel, contents string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(contents), 0o644))
}

// sha256Concat reproduces store.HashSource's rule: hash each input,
// sort the hex digests, then hash their concatenation.
func sha256Concat(contents ...string) string {
	digests := make([]string, len(contents))
	for i, c := range contents {
		sum := sha256.Sum256([]byte(c))
		digests[i] = hex.EncodeToString(sum[:])
	}
	sort.Strings(digests)
	h := sha256.New()
	for _, d := range digests {
		io.WriteString(h, d)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func TestPrepareArtifactLocalSourceDigestAndNoDuplicatePush(t *testing.T) {
	registryAddr, identity, archives := startTestRegistry(t)

	contextDir := t.TempDir()
	writeSourceFile(t, contextDir, "src/a.txt", "hello")
	writeSourceFile(t, contextDir, "src/b.txt", "world")

	srv := NewServer(store.New(t.TempDir()), identity, nil, silentLogger())

	req := &api.PrepareArtifactRequest{
		Artifact: &artifact.Artifact{
			Name:   "greeting",
			Target: artifact.SystemX8664Linux,
			Sources: []artifact.Source{
				{Name: "src", Path: ".", Includes: []string{"src/**"}},
			},
			Steps: []artifact.Step{{Script: "true"}},
		},
		ArtifactContext: contextDir,
		Registry:        registryAddr,
	}

	expectedDigest := sha256Concat("hello", "world")

	stream1 := newFakePrepareStream(t)
	require.NoError(t, srv.PrepareArtifact(req, stream1))
	resp1 := stream1.terminal(t)
	require.Len(t, resp1.Artifact.Sources, 1)
	require.Equal(t, expectedDigest, resp1.Artifact.Sources[0].Digest)
	require.NotEmpty(t, resp1.ArtifactDigest)
	require.EqualValues(t, 1, archives.pushCount())

	stream2 := newFakePrepareStream(t)
	require.NoError(t, srv.PrepareArtifact(req, stream2))
	resp2 := stream2.terminal(t)
	require.Equal(t, expectedDigest, resp2.Artifact.Sources[0].Digest)
	require.EqualValues(t, 1, archives.pushCount(), "second prepare of the same content must not push again")
}

func TestPrepareArtifactLockfileDigestMismatchWithoutUpdate(t *testing.T) {
	registryAddr, identity, _ := startTestRegistry(t)

	srcServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("source-contents"))
	}))
	defer srcServer.Close()
	sourceURL := srcServer.URL + "/source.bin"

	contextDir := t.TempDir()
	lockPath := filepath.Join(contextDir, "Vorpal.lock")
	require.NoError(t, lockfile.Save(lockPath, &lockfile.Lockfile{
		Lockfile: 1,
		Sources: []lockfile.Source{
			{Name: "upstream", Platform: "x86_64-linux", Path: sourceURL, Digest: "lockfile-digest"},
		},
	}))

	srv := NewServer(store.New(t.TempDir()), identity, nil, silentLogger())

	req := &api.PrepareArtifactRequest{
		Artifact: &artifact.Artifact{
			Name:   "fetch",
			Target: artifact.SystemX8664Linux,
			Sources: []artifact.Source{
				{Name: "upstream", Path: sourceURL, Digest: "request-digest"},
			},
			Steps: []artifact.Step{{Script: "true"}},
		},
		ArtifactContext: contextDir,
		ArtifactUpdate:  false,
		Registry:        registryAddr,
	}

	err := srv.PrepareArtifact(req, newFakePrepareStream(t))
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.FailedPrecondition, st.Code())
	require.Contains(t, st.Message(), "upstream")
	require.Contains(t, st.Message(), "lockfile-digest")
	require.Contains(t, st.Message(), "request-digest")
}

func TestPrepareArtifactLockfileDigestOverwrittenOnUpdate(t *testing.T) {
	registryAddr, identity, _ := startTestRegistry(t)

	const sourceBody = "source-contents-v2"
	srcServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sourceBody))
	}))
	defer srcServer.Close()
	sourceURL := srcServer.URL + "/source.bin"

	contextDir := t.TempDir()
	lockPath := filepath.Join(contextDir, "Vorpal.lock")
	require.NoError(t, lockfile.Save(lockPath, &lockfile.Lockfile{
		Lockfile: 1,
		Sources: []lockfile.Source{
			{Name: "upstream", Platform: "x86_64-linux", Path: sourceURL, Digest: "stale-lockfile-digest"},
		},
	}))

	srv := NewServer(store.New(t.TempDir()), identity, nil, silentLogger())

	req := &api.PrepareArtifactRequest{
		Artifact: &artifact.Artifact{
			Name:   "fetch",
			Target: artifact.SystemX8664Linux,
			Sources: []artifact.Source{
				{Name: "upstream", Path: sourceURL, Digest: "stale-request-digest"},
			},
			Steps: []artifact.Step{{Script: "true"}},
		},
		ArtifactContext: contextDir,
		ArtifactUpdate:  true,
		Registry:        registryAddr,
	}

	require.NoError(t, srv.PrepareArtifact(req, newFakePrepareStream(t)))

	updated, err := lockfile.Load(lockPath)
	require.NoError(t, err)
	entry, ok := updated.Find("upstream", "x86_64-linux")
	require.True(t, ok)
	require.NotEqual(t, "stale-lockfile-digest", entry.Digest)
	require.NotEqual(t, "stale-request-digest", entry.Digest)
	require.Equal(t, sha256Concat(sourceBody), entry.Digest)
}

func TestPrepareArtifactSealsStepSecrets(t *testing.T) {
	registryAddr, identity, _ := startTestRegistry(t)

	boot, err := notary.GenerateBootstrap()
	require.NoError(t, err)

	srv := NewServer(store.New(t.TempDir()), identity, boot.ServicePub, silentLogger())

	buildReq := func() *api.PrepareArtifactRequest {
		return &api.PrepareArtifactRequest{
			Artifact: &artifact.Artifact{
				Name:   "secret-passthrough",
				Target: artifact.SystemX8664Linux,
				Steps: []artifact.Step{{
					Script:  "echo $TOKEN > $VORPAL_OUTPUT/t",
					Secrets: []artifact.StepSecret{{Name: "TOKEN", Value: "abc"}},
				}},
			},
			ArtifactContext: t.TempDir(),
			Registry:        registryAddr,
		}
	}

	stream1 := newFakePrepareStream(t)
	require.NoError(t, srv.PrepareArtifact(buildReq(), stream1))
	resp1 := stream1.terminal(t)
	require.Len(t, resp1.Artifact.Steps, 1)
	ciphertext1 := resp1.Artifact.Steps[0].Secrets[0].Value
	require.NotEqual(t, "abc", ciphertext1)

	stream2 := newFakePrepareStream(t)
	require.NoError(t, srv.PrepareArtifact(buildReq(), stream2))
	resp2 := stream2.terminal(t)
	ciphertext2 := resp2.Artifact.Steps[0].Secrets[0].Value
	require.NotEqual(t, "abc", ciphertext2)

	require.NotEqual(t, ciphertext1, ciphertext2, "OAEP sealing must be randomized across calls")

	plaintext1, err := notary.Decrypt(boot.ServiceKey, ciphertext1)
	require.NoError(t, err)
	plaintext2, err := notary.Decrypt(boot.ServiceKey, ciphertext2)
	require.NoError(t, err)
	require.Equal(t, "abc", plaintext1)
	require.Equal(t, "abc", plaintext2)
}

var _ grpc.ServerStreamingServer[api.PrepareArtifactResponse] = (*fakePrepareStream)(nil)
