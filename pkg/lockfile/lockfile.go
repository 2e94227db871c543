// Package lockfile reads and writes Vorpal.lock, the TOML record
// pinning source digests per platform inside an artifact's context
// directory.
package lockfile

import (
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"

	vorpalerrors "github.com/vorpalbuild/vorpal/pkg/errors"
)

const currentVersion = 1

// Source is one pinned entry in the lockfile.
type Source struct {
	Name     string   `toml:"name"`
	Platform string   `toml:"platform"`
	Path     string   `toml:"path"`
	Includes []string `toml:"includes,omitempty"`
	Excludes []string `toml:"excludes,omitempty"`
	Digest   string   `toml:"digest"`
}

// Lockfile is the root TOML document.
type Lockfile struct {
	Lockfile uint32   `toml:"lockfile"`
	Sources  []Source `toml:"sources"`
}

// Load reads path, returning an empty Lockfile (not an error) if the
// file does not exist — callers treat "no lockfile yet" as valid state.
func Load(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Lockfile{Lockfile: currentVersion}, nil
	}
	if err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "read lockfile", err)
	}
	var lf Lockfile
	if err := toml.Unmarshal(data, &lf); err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "parse lockfile", err)
	}
	if lf.Lockfile == 0 {
		lf.Lockfile = currentVersion
	}
	return &lf, nil
}

// Save sorts sources by (name, digest) and writes the TOML document to path.
func Save(path string, lf *Lockfile) error {
	lf.Sort()
	data, err := toml.Marshal(lf)
	if err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "marshal lockfile", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "write lockfile", err)
	}
	return nil
}

// Sort orders entries by (name, digest), per the spec's lockfile invariant.
func (lf *Lockfile) Sort() {
	sort.Slice(lf.Sources, func(i, j int) bool {
		if lf.Sources[i].Name != lf.Sources[j].Name {
			return lf.Sources[i].Name < lf.Sources[j].Name
		}
		return lf.Sources[i].Digest < lf.Sources[j].Digest
	})
}

// Find returns the entry matching (name, platform), if any.
func (lf *Lockfile) Find(name, platform string) (*Source, bool) {
	for i := range lf.Sources {
		if lf.Sources[i].Name == name && lf.Sources[i].Platform == platform {
			return &lf.Sources[i], true
		}
	}
	return nil, false
}

// Upsert inserts or replaces the entry for (name, platform).
func (lf *Lockfile) Upsert(entry Source) {
	for i := range lf.Sources {
		if lf.Sources[i].Name == entry.Name && lf.Sources[i].Platform == entry.Platform {
			lf.Sources[i] = entry
			return
		}
	}
	lf.Sources = append(lf.Sources, entry)
}
