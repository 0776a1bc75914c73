// Package manifest reads the package.toml manifest that identifies a
// package on disk. The fetch engine only needs the identity fields; the
// rest of the manifest belongs to higher-level tooling and passes through
// untouched.
package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/pkgfetch/pkgfetch/pkg/fetcherr"
	"github.com/pkgfetch/pkgfetch/pkg/version"
)

// FileName is the manifest filename expected at a package root.
const FileName = "package.toml"

type Manifest struct {
	Package PackageSection `toml:"package"`
}

type PackageSection struct {
	Name        string `toml:"name"`
	Version     string `toml:"version"`
	Description string `toml:"description,omitempty"`
}

// Name returns the package name.
func (m *Manifest) Name() string { return m.Package.Name }

// Version parses the manifest's version field.
func (m *Manifest) Version() (*version.Version, error) {
	return version.Parse(m.Package.Version)
}

// Load reads and validates the manifest at the root of dir. A missing or
// malformed manifest is an INVALID_PACKAGE_LAYOUT error; a missing dir is
// PATH_NOT_FOUND.
func Load(dir string) (*Manifest, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fetcherr.New(fetcherr.CodePathNotFound, "package directory does not exist: %s", dir)
		}
		return nil, fmt.Errorf("checking package directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fetcherr.New(fetcherr.CodePathNotFound, "package path is not a directory: %s", dir)
	}

	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fetcherr.New(fetcherr.CodeInvalidPackageLayout, "no %s in %s", FileName, dir)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	m := &Manifest{}
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, fetcherr.Wrap(fetcherr.CodeInvalidPackageLayout, err, "parsing %s", path)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the identity fields the fetch engine depends on.
func (m *Manifest) Validate() error {
	if m.Package.Name == "" {
		return fetcherr.New(fetcherr.CodeInvalidPackageLayout, "%s is missing package.name", FileName)
	}
	if m.Package.Version == "" {
		return fetcherr.New(fetcherr.CodeInvalidPackageLayout, "%s is missing package.version", FileName)
	}
	if _, err := version.Parse(m.Package.Version); err != nil {
		return fetcherr.Wrap(fetcherr.CodeInvalidPackageLayout, err, "%s has a malformed package.version", FileName)
	}
	return nil
}

// Write serializes the manifest to dir/package.toml. Used by tests and by
// tooling that scaffolds packages.
func Write(dir string, m *Manifest) error {
	data, err := toml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, FileName), data, 0o644)
}
