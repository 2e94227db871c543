// Package agent implements the preparation plane's single RPC,
// PrepareArtifact: resolving each declared source to a content digest
// (fetching and archiving it into the registry along the way),
// sealing step secrets for the worker, and returning the artifact's
// canonical digest. Grounded on the reference preparation command's
// build_source/prepare_artifact pair.
package agent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"github.com/mholt/archives"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/vorpalbuild/vorpal/pkg/api"
	agentgrpc "github.com/vorpalbuild/vorpal/pkg/api/agent"
	archivegrpc "github.com/vorpalbuild/vorpal/pkg/api/archive"
	"github.com/vorpalbuild/vorpal/pkg/artifact"
	vorpalerrors "github.com/vorpalbuild/vorpal/pkg/errors"
	"github.com/vorpalbuild/vorpal/pkg/lockfile"
	"github.com/vorpalbuild/vorpal/pkg/notary"
	"github.com/vorpalbuild/vorpal/pkg/store"
	"github.com/vorpalbuild/vorpal/pkg/transport"
)

const archiveChunkSize = 2 * 1024 * 1024

// sourceKind classifies an artifact source's path before it is prepared.
type sourceKind int

const (
	sourceUnknown sourceKind = iota
	sourceLocal
	sourceGit
	sourceHTTP
)

func classifySource(path string) sourceKind {
	switch {
	case fileExists(path):
		return sourceLocal
	case strings.HasPrefix(path, "git"):
		return sourceGit
	case strings.HasPrefix(path, "http"):
		return sourceHTTP
	default:
		return sourceUnknown
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Server implements agentgrpc.AgentServiceServer.
type Server struct {
	agentgrpc.UnimplementedAgentServiceServer

	Store            *store.Store
	Identity         *transport.Identity
	ServicePublicKey []byte
	Log              *logrus.Logger
}

func NewServer(st *store.Store, id *transport.Identity, servicePublicKey []byte, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{Store: st, Identity: id, ServicePublicKey: servicePublicKey, Log: log}
}

func (s *Server) PrepareArtifact(req *api.PrepareArtifactRequest, stream grpc.ServerStreamingServer[api.PrepareArtifactResponse]) error {
	ctx := stream.Context()
	if req.Artifact == nil {
		return vorpalerrors.New(vorpalerrors.ErrCodeInvalidArgument, "'artifact' is required").ToStatus().Err()
	}

	art := req.Artifact

	sealedSteps, err := s.sealStepSecrets(art.Steps)
	if err != nil {
		return toGRPCErr(err)
	}

	lockPath := filepath.Join(req.ArtifactContext, "Vorpal.lock")
	lock, err := lockfile.Load(lockPath)
	if err != nil {
		s.Log.WithError(err).Warn("agent: failed to load lockfile, proceeding without hydration")
		lock = &lockfile.Lockfile{Lockfile: 1}
	}

	platform := platformFor(art.Target)

	archiveConn, err := transport.Dial(s.Identity, req.Registry)
	if err != nil {
		return toGRPCErr(vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "dial registry", err))
	}
	defer archiveConn.Close()
	archiveClient := archivegrpc.NewArchiveServiceClient(archiveConn)

	resolvedSources := make([]artifact.Source, 0, len(art.Sources))
	lockModified := false

	for _, src := range art.Sources {
		if entry, ok := lock.Find(src.Name, platform); ok {
			changed := !stringSlicesEqual(src.Includes, entry.Includes) ||
				!stringSlicesEqual(src.Excludes, entry.Excludes) ||
				src.Path != entry.Path

			if !req.ArtifactUpdate && changed {
				return vorpalerrors.Newf(vorpalerrors.ErrCodeFailedPrecondition,
					"source '%s' changed in lockfile: %q -> %q", src.Name, src.Path, entry.Path).ToStatus().Err()
			}
			if !req.ArtifactUpdate && src.Digest != "" && src.Digest != entry.Digest {
				return vorpalerrors.Newf(vorpalerrors.ErrCodeFailedPrecondition,
					"source '%s' digest changed in lockfile: %q -> %q", src.Name, src.Digest, entry.Digest).ToStatus().Err()
			}
			if entry.Digest != "" && !changed {
				src.Digest = entry.Digest
				s.Log.WithFields(logrus.Fields{"source": src.Name, "platform": platform, "digest": entry.Digest}).Info("agent: hydrated source from lockfile")
			}
		}

		digest, err := s.buildSource(ctx, req.ArtifactContext, req.ArtifactUpdate, archiveClient, &src, stream)
		if err != nil {
			return toGRPCErr(err)
		}
		src.Digest = digest
		resolvedSources = append(resolvedSources, src)

		if strings.HasPrefix(src.Path, "http://") || strings.HasPrefix(src.Path, "https://") {
			lock.Upsert(lockfile.Source{
				Name:     src.Name,
				Platform: platform,
				Path:     src.Path,
				Includes: src.Includes,
				Excludes: src.Excludes,
				Digest:   digest,
			})
			lockModified = true
		}
	}

	if lockModified {
		if err := lockfile.Save(lockPath, lock); err != nil {
			s.Log.WithError(err).Warn("agent: failed to update lockfile")
		} else {
			s.Log.Info("agent: updated lockfile")
		}
	}

	resolved := &artifact.Artifact{
		Name:    art.Name,
		Aliases: art.Aliases,
		Sources: resolvedSources,
		Steps:   sealedSteps,
		Systems: art.Systems,
		Target:  art.Target,
	}

	digest, err := resolved.Digest()
	if err != nil {
		return toGRPCErr(err)
	}

	if err := stream.Send(&api.PrepareArtifactResponse{Artifact: resolved, ArtifactDigest: digest}); err != nil {
		return err
	}

	s.Log.WithFields(logrus.Fields{"name": resolved.Name, "digest": digest}).Info("agent: prepared artifact")
	return nil
}

// sealStepSecrets encrypts every step secret's value with the service
// public key, so plaintext secrets never reach the canonical artifact
// record the registry stores.
func (s *Server) sealStepSecrets(steps []artifact.Step) ([]artifact.Step, error) {
	out := make([]artifact.Step, len(steps))
	for i, step := range steps {
		sealed := make([]artifact.StepSecret, len(step.Secrets))
		for j, secret := range step.Secrets {
			value, err := notary.Encrypt(s.ServicePublicKey, secret.Value)
			if err != nil {
				return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "encrypt step secret", err)
			}
			sealed[j] = artifact.StepSecret{Name: secret.Name, Value: value}
		}
		out[i] = step
		out[i].Secrets = sealed
	}
	return out, nil
}

func (s *Server) buildSource(ctx context.Context, artifactContext string, artifactUpdate bool, archiveClient archivegrpc.ArchiveServiceClient, src *artifact.Source, stream grpc.ServerStreamingServer[api.PrepareArtifactResponse]) (string, error) {
	kind := classifySource(src.Path)
	if kind == sourceUnknown {
		return "", vorpalerrors.Newf(vorpalerrors.ErrCodeInvalidArgument, "'source.%s.path' unknown kind: %q", src.Name, src.Path)
	}
	if kind == sourceGit {
		return "", vorpalerrors.Newf(vorpalerrors.ErrCodeInvalidArgument, "'source.%s.path' git not supported", src.Name)
	}

	if src.Digest != "" {
		_, err := archiveClient.Check(ctx, &api.ArchivePullRequest{Digest: src.Digest})
		if err == nil {
			return src.Digest, nil
		}
	}

	sandbox := s.Store.SandboxDir(uuid.NewString())
	if err := os.MkdirAll(sandbox, 0o755); err != nil {
		return "", vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "create sandbox", err)
	}
	defer os.RemoveAll(sandbox)

	if kind == sourceHTTP {
		if err := fetchAndExtractHTTP(ctx, src, sandbox, stream); err != nil {
			return "", err
		}
	}

	if kind == sourceLocal {
		if !fileExists(artifactContext) {
			return "", vorpalerrors.Newf(vorpalerrors.ErrCodeInvalidArgument, "artifact not found in: %s", artifactContext)
		}
		files, err := store.Enumerate(artifactContext, src.Includes, src.Excludes)
		if err != nil {
			return "", err
		}
		if err := copyFiles(artifactContext, files, sandbox); err != nil {
			return "", err
		}
	}

	sandboxFiles, err := store.Enumerate(sandbox, src.Includes, src.Excludes)
	if err != nil {
		return "", err
	}
	if len(sandboxFiles) == 0 {
		return "", vorpalerrors.Newf(vorpalerrors.ErrCodeInvalidArgument, "artifact 'source.%s.path' no files found: %s", src.Name, src.Path)
	}

	for _, rel := range sandboxFiles {
		if err := store.NormalizeTimestamps(filepath.Join(sandbox, rel)); err != nil {
			return "", err
		}
	}

	digest, err := store.HashSource(sandbox, sandboxFiles)
	if err != nil {
		return "", err
	}

	if src.Digest != "" && !artifactUpdate && digest != src.Digest {
		return "", vorpalerrors.Newf(vorpalerrors.ErrCodeFailedPrecondition, "'source.%s.digest' mismatch: %s != %s", src.Name, digest, src.Digest)
	}

	if _, err := archiveClient.Check(ctx, &api.ArchivePullRequest{Digest: digest}); err != nil {
		archivePath := filepath.Join(os.TempDir(), digest+".tar.zst")
		send(stream, fmt.Sprintf("pack source: %s", digest))
		if err := store.PackZstd(sandbox, sandboxFiles, archivePath); err != nil {
			return "", err
		}
		defer os.Remove(archivePath)

		data, err := os.ReadFile(archivePath)
		if err != nil {
			return "", vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "read packed archive", err)
		}

		send(stream, fmt.Sprintf("push source: %s", digest))
		if err := pushArchive(ctx, archiveClient, digest, data); err != nil {
			return "", err
		}
	}

	return digest, nil
}

func pushArchive(ctx context.Context, client archivegrpc.ArchiveServiceClient, digest string, data []byte) error {
	pushStream, err := client.Push(ctx)
	if err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "open archive push stream", err)
	}
	for len(data) > 0 {
		n := archiveChunkSize
		if n > len(data) {
			n = len(data)
		}
		if err := pushStream.Send(&api.ArchivePushRequest{Digest: digest, Data: data[:n]}); err != nil {
			return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "send archive chunk", err)
		}
		data = data[n:]
	}
	_, err = pushStream.CloseAndRecv()
	if err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "close archive push stream", err)
	}
	return nil
}

func fetchAndExtractHTTP(ctx context.Context, src *artifact.Source, sandbox string, stream grpc.ServerStreamingServer[api.PrepareArtifactResponse]) error {
	parsed, err := url.Parse(src.Path)
	if err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInvalidArgument, "parse source url", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return vorpalerrors.Newf(vorpalerrors.ErrCodeInvalidArgument, "remote scheme not supported: %q", parsed.Scheme)
	}

	send(stream, fmt.Sprintf("download source: %s", parsed))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "build http request", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "fetch remote source", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return vorpalerrors.Newf(vorpalerrors.ErrCodeInternal, "remote fetch failed: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "read remote body", err)
	}

	kind, _ := filetype.Match(body)

	send(stream, fmt.Sprintf("unpack source: %s", parsed))

	if kind == filetype.Unknown {
		name := filepath.Base(parsed.Path)
		if name == "" || name == "." || name == "/" {
			name = src.Name
		}
		return os.WriteFile(filepath.Join(sandbox, name), body, 0o644)
	}

	handler := func(ctx context.Context, info archives.FileInfo) error {
		target := filepath.Join(sandbox, filepath.Clean(info.NameInArchive))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		r, err := info.Open()
		if err != nil {
			return err
		}
		defer r.Close()
		out, err := os.Create(target)
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, r)
		return err
	}

	switch kind.MIME.Value {
	case "application/gzip":
		dec := archives.Gz{}
		r, err := dec.OpenReader(bytes.NewReader(body))
		if err != nil {
			return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "open gzip reader", err)
		}
		defer r.Close()
		return (archives.Tar{}).Extract(ctx, r, handler)
	case "application/x-bzip2":
		dec := archives.Bz2{}
		r, err := dec.OpenReader(bytes.NewReader(body))
		if err != nil {
			return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "open bzip2 reader", err)
		}
		defer r.Close()
		return (archives.Tar{}).Extract(ctx, r, handler)
	case "application/x-xz":
		dec := archives.Xz{}
		r, err := dec.OpenReader(bytes.NewReader(body))
		if err != nil {
			return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "open xz reader", err)
		}
		defer r.Close()
		return (archives.Tar{}).Extract(ctx, r, handler)
	case "application/zip":
		return (archives.Zip{}).Extract(ctx, bytes.NewReader(body), handler)
	default:
		return vorpalerrors.Newf(vorpalerrors.ErrCodeInvalidArgument, "'source.%s.path' unsupported mime-type detected: %s", src.Name, kind.MIME.Value)
	}
}

func send(stream grpc.ServerStreamingServer[api.PrepareArtifactResponse], output string) {
	if stream == nil {
		return
	}
	_ = stream.Send(&api.PrepareArtifactResponse{ArtifactOutput: output})
}

func copyFiles(srcDir string, relFiles []string, destDir string) error {
	for _, rel := range relFiles {
		src := filepath.Join(srcDir, rel)
		dst := filepath.Join(destDir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "create copy destination", err)
		}
		data, err := os.ReadFile(src)
		if err != nil {
			return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "read source file", err)
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "write copied file", err)
		}
	}
	return nil
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func toGRPCErr(err error) error {
	if err == nil {
		return nil
	}
	if ve, ok := err.(*vorpalerrors.Error); ok {
		return ve.ToStatus().Err()
	}
	return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "agent error", err).ToStatus().Err()
}
