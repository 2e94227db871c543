// Package store owns the content-addressed filesystem layout shared by
// the Agent, Worker, and Registry planes: archives, unpacked outputs,
// aliases, sandboxes, and keys, all rooted under one directory.
package store

import (
	"path/filepath"
)

// Store is the root of the content-addressed filesystem tree described
// in the spec's content-store component: key/, archive/<ns>/, output/<ns>/,
// alias/<ns>/, config/, sandbox/.
type Store struct {
	Root string
}

// New returns a Store rooted at root. The directory is not created
// here; callers create the subdirectories they write into.
func New(root string) *Store {
	return &Store{Root: root}
}

func (s *Store) KeyDir() string {
	return filepath.Join(s.Root, "key")
}

func (s *Store) CAPath() string       { return filepath.Join(s.KeyDir(), "ca.pem") }
func (s *Store) CAKeyPath() string    { return filepath.Join(s.KeyDir(), "ca.key") }
func (s *Store) ServicePath() string  { return filepath.Join(s.KeyDir(), "service.pem") }
func (s *Store) ServiceKeyPath() string {
	return filepath.Join(s.KeyDir(), "service.key")
}
func (s *Store) ServicePubPath() string {
	return filepath.Join(s.KeyDir(), "service.pub")
}

// ArchivePath returns the path to the packed tar.zst blob for a
// namespace + digest pair.
func (s *Store) ArchivePath(namespace, digest string) string {
	return filepath.Join(s.Root, "archive", namespace, digest+".tar.zst")
}

// OutputDir returns the unpacked artifact output directory.
func (s *Store) OutputDir(namespace, digest string) string {
	return filepath.Join(s.Root, "output", namespace, digest)
}

// OutputLockPath returns the in-progress marker file for a build.
func (s *Store) OutputLockPath(namespace, digest string) string {
	return filepath.Join(s.Root, "output", namespace, digest+".lock")
}

// AliasPath returns the file holding the digest an alias resolves to.
func (s *Store) AliasPath(namespace, system, name, tag string) string {
	return filepath.Join(s.Root, "alias", namespace, system, name, tag)
}

// ConfigPath returns the local-backend canonical artifact JSON path.
func (s *Store) ConfigPath(digest string) string {
	return filepath.Join(s.Root, "config", digest+".json")
}

// SandboxDir returns a fresh scratch directory path for id (a uuid).
func (s *Store) SandboxDir(id string) string {
	return filepath.Join(s.Root, "sandbox", id)
}
