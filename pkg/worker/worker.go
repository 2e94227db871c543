// Package worker implements the build plane's single RPC,
// BuildArtifact: pulling every declared source from the registry,
// running each step in a shared workspace, and publishing the result
// back to the registry. Grounded on the reference build command's
// pull_source/run_step/build_artifact sequence.
package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/vorpalbuild/vorpal/pkg/api"
	archivegrpc "github.com/vorpalbuild/vorpal/pkg/api/archive"
	artifactgrpc "github.com/vorpalbuild/vorpal/pkg/api/artifactsvc"
	workergrpc "github.com/vorpalbuild/vorpal/pkg/api/worker"
	"github.com/vorpalbuild/vorpal/pkg/artifact"
	"github.com/vorpalbuild/vorpal/pkg/authn"
	vorpalerrors "github.com/vorpalbuild/vorpal/pkg/errors"
	"github.com/vorpalbuild/vorpal/pkg/notary"
	"github.com/vorpalbuild/vorpal/pkg/store"
	"github.com/vorpalbuild/vorpal/pkg/transport"
)

const archiveChunkSize = 2 * 1024 * 1024

// Server implements workergrpc.WorkerServiceServer.
type Server struct {
	workergrpc.UnimplementedWorkerServiceServer

	Store             *store.Store
	Identity          *transport.Identity
	ServicePrivateKey []byte
	Target            artifact.System
	Credentials       *authn.ServiceCredentials
	Log               *logrus.Logger
}

func NewServer(st *store.Store, id *transport.Identity, servicePrivateKey []byte, target artifact.System, creds *authn.ServiceCredentials, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{Store: st, Identity: id, ServicePrivateKey: servicePrivateKey, Target: target, Credentials: creds, Log: log}
}

func (s *Server) BuildArtifact(req *api.BuildArtifactRequest, stream grpc.ServerStreamingServer[api.BuildArtifactResponse]) error {
	ctx := stream.Context()

	art := req.Artifact
	if art == nil {
		return vorpalerrors.New(vorpalerrors.ErrCodeInvalidArgument, "artifact is missing").ToStatus().Err()
	}
	if err := art.Validate(s.Target); err != nil {
		return toGRPCErr(err)
	}

	digest, err := art.Digest()
	if err != nil {
		return toGRPCErr(err)
	}

	namespace := req.ArtifactNamespace

	outputPath := s.Store.OutputDir(namespace, digest)
	if fileExists(outputPath) {
		return vorpalerrors.AlreadyExistsError("artifact", digest).ToStatus().Err()
	}

	lockPath := s.Store.OutputLockPath(namespace, digest)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return toGRPCErr(vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "create lock parent", err))
	}
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return vorpalerrors.AlreadyExistsError("artifact lock", digest).ToStatus().Err()
		}
		return toGRPCErr(vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "create lock file", err))
	}
	if _, err := lockFile.WriteString(digest); err != nil {
		lockFile.Close()
		os.Remove(lockPath)
		return toGRPCErr(vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "write lock file", err))
	}
	lockFile.Close()
	defer os.Remove(lockPath)
	if fileExists(outputPath) {
		return vorpalerrors.AlreadyExistsError("artifact", digest).ToStatus().Err()
	}

	archiveToken, artifactToken := s.obtainServiceCredentials(ctx)

	workspace := s.Store.SandboxDir(uuid.NewString())
	sourceDir := filepath.Join(workspace, "source")
	if err := os.MkdirAll(sourceDir, 0o755); err != nil {
		return toGRPCErr(vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "create workspace", err))
	}
	defer os.RemoveAll(workspace)

	archiveConn, err := transport.Dial(s.Identity, req.Registry)
	if err != nil {
		return toGRPCErr(vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "dial registry", err))
	}
	defer archiveConn.Close()
	archiveClient := archivegrpc.NewArchiveServiceClient(archiveConn)

	for _, src := range art.Sources {
		if err := s.pullSource(ctx, archiveToken, namespace, &src, sourceDir, archiveClient, stream); err != nil {
			return toGRPCErr(err)
		}
		s.Log.WithField("source", src.Name).Info("worker: pulled source")
	}

	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		return toGRPCErr(vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "create artifact output", err))
	}

	for _, step := range art.Steps {
		if err := s.runStep(ctx, digest, namespace, outputPath, step, workspace, stream); err != nil {
			return toGRPCErr(err)
		}
	}

	outputFiles, err := store.Enumerate(outputPath, nil, nil)
	if err != nil {
		return toGRPCErr(err)
	}

	if len(outputFiles) > 0 {
		if err := s.publish(ctx, archiveToken, artifactToken, digest, namespace, req.Registry, outputPath, outputFiles, req.ArtifactAliases, art, archiveClient, stream); err != nil {
			return toGRPCErr(err)
		}
	} else {
		if err := os.RemoveAll(outputPath); err != nil {
			return toGRPCErr(vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "remove artifact output", err))
		}
	}

	s.Log.WithFields(logrus.Fields{"name": art.Name, "digest": digest}).Info("worker: built artifact")
	return nil
}

func (s *Server) obtainServiceCredentials(ctx context.Context) (archiveToken, artifactToken string) {
	if s.Credentials == nil {
		return "", ""
	}
	archiveToken, err := s.Credentials.BearerToken(ctx, "archive")
	if err != nil {
		s.Log.WithError(err).Warn("worker: failed to obtain archive service credentials")
		archiveToken = ""
	}
	artifactToken, err = s.Credentials.BearerToken(ctx, "artifact")
	if err != nil {
		s.Log.WithError(err).Warn("worker: failed to obtain artifact service credentials")
		artifactToken = ""
	}
	return archiveToken, artifactToken
}

func withBearer(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}

func (s *Server) pullSource(ctx context.Context, token, namespace string, src *artifact.Source, sourceDir string, client archivegrpc.ArchiveServiceClient, stream grpc.ServerStreamingServer[api.BuildArtifactResponse]) error {
	if src.Digest == "" {
		return vorpalerrors.New(vorpalerrors.ErrCodeInvalidArgument, "artifact source 'digest' is missing")
	}
	if src.Name == "" {
		return vorpalerrors.New(vorpalerrors.ErrCodeInvalidArgument, "artifact source 'name' is missing")
	}

	ctx = withBearer(ctx, token)

	archivePath := s.Store.ArchivePath(namespace, src.Digest)
	if !fileExists(archivePath) {
		send(stream, fmt.Sprintf("pull source: %s", src.Digest))

		pullStream, err := client.Pull(ctx, &api.ArchivePullRequest{Namespace: namespace, Digest: src.Digest})
		if err != nil {
			return vorpalerrors.Wrap(vorpalerrors.ErrCodeNotFound, "pull source archive", err)
		}

		var data []byte
		for {
			chunk, err := pullStream.Recv()
			if err == io.EOF {
				break
			}
			if err != nil {
				return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "receive source archive", err)
			}
			data = append(data, chunk.Data...)
		}
		if len(data) == 0 {
			return vorpalerrors.New(vorpalerrors.ErrCodeNotFound, "source archive empty in registry")
		}

		if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
			return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "create archive parent", err)
		}
		if err := os.WriteFile(archivePath, data, 0o644); err != nil {
			return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "write source archive", err)
		}
		if err := store.NormalizeTimestamps(archivePath); err != nil {
			return err
		}
	}

	send(stream, fmt.Sprintf("unpack source: %s", src.Digest))

	sourceWorkspace := filepath.Join(sourceDir, src.Name)
	if err := os.MkdirAll(sourceWorkspace, 0o755); err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "create source path", err)
	}
	if err := store.UnpackZstd(archivePath, sourceWorkspace); err != nil {
		return err
	}

	files, err := store.Enumerate(sourceWorkspace, nil, nil)
	if err != nil {
		return err
	}
	for _, rel := range files {
		if err := store.NormalizeTimestamps(filepath.Join(sourceWorkspace, rel)); err != nil {
			return err
		}
	}
	return nil
}

// expandEnv replaces every "$KEY" occurrence in text with the matching
// entry's value from envs ("KEY=VALUE" strings).
func expandEnv(text string, envs []string) string {
	for _, e := range envs {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) != 2 {
			continue
		}
		text = strings.ReplaceAll(text, "$"+parts[0], parts[1])
	}
	return text
}

func (s *Server) runStep(ctx context.Context, artifactDigest, namespace, artifactOutputPath string, step artifact.Step, workspace string, stream grpc.ServerStreamingServer[api.BuildArtifactResponse]) error {
	var environments []string
	var paths []string

	for _, dep := range step.Artifacts {
		depPath := s.Store.OutputDir(namespace, dep)
		if !fileExists(depPath) {
			return vorpalerrors.New(vorpalerrors.ErrCodeInternal, "artifact not found")
		}
		environments = append(environments, fmt.Sprintf("VORPAL_ARTIFACT_%s=%s", dep, depPath))
		paths = append(paths, depPath)
	}

	if len(paths) > 0 {
		environments = append(environments, "VORPAL_ARTIFACTS="+strings.Join(paths, " "))
	}

	environments = append(environments,
		fmt.Sprintf("VORPAL_ARTIFACT_%s=%s", artifactDigest, s.Store.OutputDir(namespace, artifactDigest)),
		"VORPAL_OUTPUT="+artifactOutputPath,
		"VORPAL_WORKSPACE="+workspace,
	)

	environments = append(environments, step.Environments...)

	if len(s.ServicePrivateKey) == 0 && len(step.Secrets) > 0 {
		return vorpalerrors.New(vorpalerrors.ErrCodeInternal, "private key not found")
	}
	for _, secret := range step.Secrets {
		value, err := notary.Decrypt(s.ServicePrivateKey, secret.Value)
		if err != nil {
			return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "decrypt secret", err)
		}
		environments = append(environments, secret.Name+"="+value)
	}

	keyLen := func(e string) int {
		if i := strings.Index(e, "="); i >= 0 {
			return i
		}
		return len(e)
	}
	sort.SliceStable(environments, func(i, j int) bool { return keyLen(environments[i]) < keyLen(environments[j]) })

	var vorpalEnvs []string
	for _, e := range environments {
		if strings.HasPrefix(e, "VORPAL_") {
			vorpalEnvs = append(vorpalEnvs, e)
		}
	}

	var scriptPath string
	if step.Script != "" {
		script := expandEnv(step.Script, vorpalEnvs)
		scriptPath = filepath.Join(workspace, "script.sh")
		if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
			return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "write script", err)
		}
		if err := os.Chmod(scriptPath, 0o755); err != nil {
			return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "set script permissions", err)
		}
	}

	entrypoint := step.Entrypoint
	if entrypoint == "" {
		entrypoint = scriptPath
	}
	if entrypoint == "" {
		return vorpalerrors.New(vorpalerrors.ErrCodeInvalidArgument, "entrypoint is missing")
	}

	var args []string
	if entrypoint != "" {
		for _, a := range step.Arguments {
			args = append(args, expandEnv(a, vorpalEnvs))
		}
		if scriptPath != "" {
			args = append(args, scriptPath)
		}
	}

	cmd := exec.CommandContext(ctx, entrypoint, args...)
	cmd.Dir = workspace
	cmd.Env = os.Environ()
	for _, e := range environments {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) != 2 {
			continue
		}
		cmd.Env = append(cmd.Env, parts[0]+"="+expandEnv(parts[1], vorpalEnvs))
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "capture stdout", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "capture stderr", err)
	}

	if err := cmd.Start(); err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "spawn sandbox", err)
	}

	var lastLine string
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(2)

	streamLines := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			mu.Lock()
			lastLine = line
			mu.Unlock()
			send(stream, line)
		}
	}
	go streamLines(stdout)
	go streamLines(stderr)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return vorpalerrors.New(vorpalerrors.ErrCodeInternal, lastLine)
	}
	return nil
}

func (s *Server) publish(ctx context.Context, archiveToken, artifactToken, digest, namespace, registry, outputPath string, outputFiles []string, aliases []string, art *artifact.Artifact, archiveClient archivegrpc.ArchiveServiceClient, stream grpc.ServerStreamingServer[api.BuildArtifactResponse]) error {
	send(stream, fmt.Sprintf("pack: %s", digest))

	for _, rel := range outputFiles {
		if err := store.NormalizeTimestamps(filepath.Join(outputPath, rel)); err != nil {
			return err
		}
	}

	archivePath := filepath.Join(os.TempDir(), digest+".tar.zst")
	if err := store.PackZstd(outputPath, outputFiles, archivePath); err != nil {
		return err
	}
	defer os.Remove(archivePath)

	send(stream, fmt.Sprintf("push: %s", digest))

	data, err := os.ReadFile(archivePath)
	if err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "read artifact archive", err)
	}

	pushCtx := withBearer(ctx, archiveToken)
	pushStream, err := archiveClient.Push(pushCtx)
	if err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "open archive push stream", err)
	}
	for len(data) > 0 {
		n := archiveChunkSize
		if n > len(data) {
			n = len(data)
		}
		if err := pushStream.Send(&api.ArchivePushRequest{Namespace: namespace, Digest: digest, Data: data[:n]}); err != nil {
			return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "push artifact archive", err)
		}
		data = data[n:]
	}
	if _, err := pushStream.CloseAndRecv(); err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "push artifact archive", err)
	}

	artifactConn, err := transport.Dial(s.Identity, registry)
	if err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "dial registry", err)
	}
	defer artifactConn.Close()
	artifactClient := artifactgrpc.NewArtifactServiceClient(artifactConn)

	storeCtx := withBearer(ctx, artifactToken)
	if _, err := artifactClient.StoreArtifact(storeCtx, &api.StoreArtifactRequest{
		Artifact:          art,
		ArtifactAliases:   aliases,
		ArtifactNamespace: namespace,
	}); err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "store artifact in registry", err)
	}

	return nil
}

func send(stream grpc.ServerStreamingServer[api.BuildArtifactResponse], output string) {
	if stream == nil {
		return
	}
	_ = stream.Send(&api.BuildArtifactResponse{Output: output})
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func toGRPCErr(err error) error {
	if err == nil {
		return nil
	}
	if ve, ok := err.(*vorpalerrors.Error); ok {
		return ve.ToStatus().Err()
	}
	return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "worker error", err).ToStatus().Err()
}
