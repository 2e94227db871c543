package store

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	vorpalerrors "github.com/vorpalbuild/vorpal/pkg/errors"
)

// epoch is the fixed timestamp every archived file is normalized to, so
// that archive bytes depend only on content and layout.
var epoch = time.Unix(0, 0)

// Enumerate walks dir and returns the sorted, relative paths of regular
// files matching includes (if any) and not matching excludes. Patterns
// are matched with path/filepath.Match against the path relative to dir.
func Enumerate(dir string, includes, excludes []string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if len(includes) > 0 && !matchAny(includes, rel) {
			return nil
		}
		if matchAny(excludes, rel) {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "enumerate source files", err)
	}
	sort.Strings(out)
	return out, nil
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, rel); ok {
			return true
		}
		// globs like "src/**" commonly appear in artifact declarations;
		// filepath.Match has no "**", so also accept a plain prefix match
		// on the glob with its trailing "**" stripped.
		if strings.HasSuffix(p, "/**") && strings.HasPrefix(rel, strings.TrimSuffix(p, "/**")+"/") {
			return true
		}
		if p == "**" {
			return true
		}
	}
	return false
}

// HashFile returns the hex SHA-256 digest of a single file's contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "open file for hashing", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "hash file", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashSource computes the source digest: sort the per-file digests of
// files (already sanitized and filtered), concatenate them, and SHA-256
// the concatenation. Order-independent in the caller's file ordering by
// construction of the internal sort.
func HashSource(dir string, relFiles []string) (string, error) {
	digests := make([]string, 0, len(relFiles))
	for _, rel := range relFiles {
		d, err := HashFile(filepath.Join(dir, rel))
		if err != nil {
			return "", err
		}
		digests = append(digests, d)
	}
	sort.Strings(digests)

	h := sha256.New()
	for _, d := range digests {
		io.WriteString(h, d)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// NormalizeTimestamps sets atime/mtime on path to the fixed epoch.
func NormalizeTimestamps(path string) error {
	if err := os.Chtimes(path, epoch, epoch); err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "normalize timestamps", err)
	}
	return nil
}

// NormalizeTree normalizes timestamps on every regular file under dir.
func NormalizeTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		return NormalizeTimestamps(path)
	})
}
