package lockfile

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vorpalbuild/vorpal/pkg/api"
	archivegrpc "github.com/vorpalbuild/vorpal/pkg/api/archive"
	"github.com/vorpalbuild/vorpal/pkg/store"
)

// Mismatch is one lockfile entry that failed verification.
type Mismatch struct {
	Name   string
	Reason string
}

// Verify checks a lockfile's entries against the actual inputs they
// pin, grounded on lock.rs::verify: local sources are rehashed from
// disk and compared against the recorded digest, while sources whose
// path is a URL are instead checked for presence in the registry via
// archiveClient.Check, since there is nothing local left to rehash. A
// source is treated as a URL when its path starts with "http://" or
// "https://", the same test pkg/agent's PrepareArtifact applies before
// writing a source into the lockfile. The returned slice is empty when every entry verifies;
// it is never nil on success so callers can test len() directly.
func Verify(ctx context.Context, contextDir, namespace string, lf *Lockfile, archiveClient archivegrpc.ArchiveServiceClient) ([]Mismatch, error) {
	mismatches := make([]Mismatch, 0)

	for _, src := range lf.Sources {
		if isURLPath(src.Path) {
			continue
		}

		abs := filepath.Join(contextDir, src.Path)
		files, err := store.Enumerate(abs, src.Includes, src.Excludes)
		if err != nil {
			mismatches = append(mismatches, Mismatch{Name: src.Name, Reason: fmt.Sprintf("enumerate error: %v", err)})
			continue
		}

		digest, err := store.HashSource(abs, files)
		if err != nil {
			mismatches = append(mismatches, Mismatch{Name: src.Name, Reason: fmt.Sprintf("hash error: %v", err)})
			continue
		}

		if digest != src.Digest {
			mismatches = append(mismatches, Mismatch{Name: src.Name, Reason: fmt.Sprintf("digest mismatch: %s != %s", src.Digest, digest)})
		}
	}

	for _, src := range lf.Sources {
		if !isURLPath(src.Path) {
			continue
		}

		if src.Digest == "" {
			mismatches = append(mismatches, Mismatch{Name: src.Name, Reason: "missing digest in lockfile"})
			continue
		}

		_, err := archiveClient.Check(ctx, &api.ArchivePullRequest{Namespace: namespace, Digest: src.Digest})
		if err == nil {
			continue
		}
		if status.Code(err) == codes.NotFound {
			mismatches = append(mismatches, Mismatch{Name: src.Name, Reason: fmt.Sprintf("digest not present in registry: %s", src.Digest)})
			continue
		}
		mismatches = append(mismatches, Mismatch{Name: src.Name, Reason: fmt.Sprintf("registry error: %v", err)})
	}

	return mismatches, nil
}

func isURLPath(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}
