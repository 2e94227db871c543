// Package backend defines the two vocabulary-type contracts the
// registry server stores blobs and artifact records behind: an
// ArchiveBackend for content-addressed byte blobs, and an
// ArtifactBackend for canonical artifact records and their aliases.
// Concrete variants live in backend/local and backend/s3.
package backend

import (
	"context"
	"io"

	"github.com/vorpalbuild/vorpal/pkg/artifact"
)

// ArchiveBackend stores and serves source/output archive blobs, keyed
// by (namespace, digest).
type ArchiveBackend interface {
	// Check reports whether a blob exists. Implementations return a
	// *vorpalerrors.Error with ErrCodeNotFound when it does not.
	Check(ctx context.Context, namespace, digest string) error

	// Pull streams the blob's bytes into w.
	Pull(ctx context.Context, namespace, digest string, w io.Writer) error

	// Push stores data under (namespace, digest). Idempotent: if the
	// blob already exists, Push is a no-op.
	Push(ctx context.Context, namespace, digest string, data []byte) error
}

// ArtifactBackend stores canonical artifact records and the aliases
// that resolve to them.
type ArtifactBackend interface {
	// GetArtifact returns the canonical record for (namespace, digest).
	GetArtifact(ctx context.Context, namespace, digest string) (*artifact.Artifact, error)

	// GetArtifactAlias resolves (namespace, system, name, tag) to a digest.
	GetArtifactAlias(ctx context.Context, namespace, system, name, tag string) (string, error)

	// StoreArtifact computes the artifact's digest, writes the record if
	// absent, writes/overwrites every alias file, and returns the digest.
	StoreArtifact(ctx context.Context, namespace string, art *artifact.Artifact, aliases []string) (string, error)
}
