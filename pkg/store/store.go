// Package store provides segment-addressed filesystem primitives under a
// single root directory. The fetch cache builds its entry layout and
// atomic-publish discipline on top of these operations; nothing else in the
// system touches the cache root directly.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

const (
	dirPerm    = 0o755
	hashPrefix = "sha256:"

	// TempDirName is the reserved staging area under the root. Entries are
	// materialized here and renamed into place, so a crash never leaves a
	// complete-looking entry.
	TempDirName = ".tmp"
)

type Store interface {
	// Root returns the store's root directory.
	Root() string
	// Path returns the absolute filesystem path for the given segments
	// joined under the store root. Does not create or verify the path.
	Path(segments ...string) string
	// Exists reports whether the path at the given segments exists.
	Exists(segments ...string) (bool, error)
	// EnsureDir creates the directory at segments, including parents.
	EnsureDir(segments ...string) error
	// Remove deletes the entire tree at segments.
	Remove(segments ...string) error
	// TempDir allocates a fresh directory under the reserved staging area.
	TempDir(pattern string) (string, error)
	// Publish atomically renames src (typically a TempDir) into the slot
	// at segments, creating parent directories as needed.
	Publish(src string, segments ...string) error
	// HashDir computes a "sha256:<hex>" integrity hash over all file
	// contents in the directory at segments, walking recursively in sorted
	// order for determinism.
	HashDir(segments ...string) (string, error)
	// WriteFile writes data to the file at segments, creating parent
	// directories as needed.
	WriteFile(data []byte, perm os.FileMode, segments ...string) error
	// ReadFile reads the file at segments.
	ReadFile(segments ...string) ([]byte, error)
}

func New(root string) Store {
	return &store{root: root}
}

type store struct {
	root string
}

var _ Store = &store{}

func (s *store) Root() string {
	return s.root
}

func (s *store) Path(segments ...string) string {
	return filepath.Join(append([]string{s.root}, segments...)...)
}

func (s *store) Exists(segments ...string) (bool, error) {
	_, err := os.Stat(s.Path(segments...))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *store) EnsureDir(segments ...string) error {
	return os.MkdirAll(s.Path(segments...), dirPerm)
}

func (s *store) Remove(segments ...string) error {
	return os.RemoveAll(s.Path(segments...))
}

func (s *store) TempDir(pattern string) (string, error) {
	staging := s.Path(TempDirName)
	if err := os.MkdirAll(staging, dirPerm); err != nil {
		return "", fmt.Errorf("creating staging area %s: %w", staging, err)
	}
	dir, err := os.MkdirTemp(staging, pattern)
	if err != nil {
		return "", fmt.Errorf("allocating temp dir in %s: %w", staging, err)
	}
	return dir, nil
}

func (s *store) Publish(src string, segments ...string) error {
	dest := s.Path(segments...)
	if err := os.MkdirAll(filepath.Dir(dest), dirPerm); err != nil {
		return fmt.Errorf("creating parent of %s: %w", dest, err)
	}
	// Rename is atomic within a filesystem; the staging area lives under
	// the same root as the final slot.
	if err := os.Rename(src, dest); err != nil {
		return fmt.Errorf("publishing %s: %w", dest, err)
	}
	return nil
}

func (s *store) HashDir(segments ...string) (string, error) {
	dir := s.Path(segments...)
	h := sha256.New()

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return "", err
		}
		h.Write([]byte(f))
		h.Write(data)
	}

	return hashPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

func (s *store) WriteFile(data []byte, perm os.FileMode, segments ...string) error {
	path := s.Path(segments...)
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return err
	}
	return os.WriteFile(path, data, perm)
}

func (s *store) ReadFile(segments ...string) ([]byte, error) {
	return os.ReadFile(s.Path(segments...))
}
