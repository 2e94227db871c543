// Package local implements the registry's ArchiveBackend and
// ArtifactBackend over the content store's local filesystem layout,
// following the atomic-write (temp file + rename) pattern the teacher
// uses for its own local state backend.
package local

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/vorpalbuild/vorpal/pkg/artifact"
	vorpalerrors "github.com/vorpalbuild/vorpal/pkg/errors"
	"github.com/vorpalbuild/vorpal/pkg/store"
)

// Backend implements backend.ArchiveBackend and backend.ArtifactBackend
// against a Store root.
type Backend struct {
	store *store.Store
}

func New(s *store.Store) *Backend {
	return &Backend{store: s}
}

func (b *Backend) Check(_ context.Context, namespace, digest string) error {
	if digest == "" {
		return vorpalerrors.New(vorpalerrors.ErrCodeInvalidArgument, "digest is empty")
	}
	path := b.store.ArchivePath(namespace, digest)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return vorpalerrors.NotFoundError("archive", digest)
		}
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "stat archive", err)
	}
	return nil
}

func (b *Backend) Pull(_ context.Context, namespace, digest string, w io.Writer) error {
	path := b.store.ArchivePath(namespace, digest)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return vorpalerrors.NotFoundError("archive", digest)
		}
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "open archive", err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "stream archive", err)
	}
	return nil
}

func (b *Backend) Push(_ context.Context, namespace, digest string, data []byte) error {
	path := b.store.ArchivePath(namespace, digest)
	if _, err := os.Stat(path); err == nil {
		// Already present: push is idempotent.
		return nil
	}
	return atomicWrite(path, data, 0o644)
}

func (b *Backend) GetArtifact(_ context.Context, _ string, digest string) (*artifact.Artifact, error) {
	path := b.store.ConfigPath(digest)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vorpalerrors.NotFoundError("artifact", digest)
		}
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "read artifact record", err)
	}
	var art artifact.Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "parse artifact record", err)
	}
	return &art, nil
}

func (b *Backend) GetArtifactAlias(_ context.Context, namespace, system, name, tag string) (string, error) {
	path := b.store.AliasPath(namespace, system, name, tag)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", vorpalerrors.NotFoundError("alias", filepath.Join(namespace, system, name, tag))
		}
		return "", vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "read alias", err)
	}
	return string(data), nil
}

func (b *Backend) StoreArtifact(_ context.Context, namespace string, art *artifact.Artifact, aliases []string) (string, error) {
	digest, err := art.Digest()
	if err != nil {
		return "", err
	}

	configPath := b.store.ConfigPath(digest)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		canon, err := art.CanonicalJSON()
		if err != nil {
			return "", err
		}
		if err := atomicWrite(configPath, canon, 0o644); err != nil {
			return "", err
		}
	}

	for _, system := range art.Systems {
		for _, alias := range aliases {
			path := b.store.AliasPath(namespace, string(system), alias, "latest")
			if err := atomicWrite(path, []byte(digest), 0o644); err != nil {
				return "", err
			}
		}
		path := b.store.AliasPath(namespace, string(system), art.Name, "latest")
		if err := atomicWrite(path, []byte(digest), 0o644); err != nil {
			return "", err
		}
	}

	return digest, nil
}

func atomicWrite(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "create directory", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "create temp file", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "close temp file", err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		os.Remove(tmpPath)
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "chmod temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "rename temp file", err)
	}
	return nil
}
