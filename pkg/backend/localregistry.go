package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"sigs.k8s.io/yaml"

	"github.com/pkgfetch/pkgfetch/pkg/fetcherr"
	"github.com/pkgfetch/pkgfetch/pkg/source"
	"github.com/pkgfetch/pkgfetch/pkg/version"
)

// IndexFileName is the index a local registry directory must contain.
const IndexFileName = "index.yaml"

// LocalRegistry serves the registry interface from a directory holding an
// index.yaml and gzip'd tar archives:
//
//	packages:
//	  serde:
//	    - version: "1.0.0"
//	      archive: serde-1.0.0.tar.gz
//
// Archive paths are relative to the registry directory. Archives use the
// same single-top-level-directory layout as remote registry downloads.
type LocalRegistry struct{}

var _ RegistryBackend = LocalRegistry{}

func NewLocalRegistry() LocalRegistry {
	return LocalRegistry{}
}

type registryIndex struct {
	Packages map[string][]indexEntry `json:"packages"`
}

type indexEntry struct {
	Version string `json:"version"`
	Archive string `json:"archive"`
}

func loadIndex(dir string) (*registryIndex, error) {
	data, err := os.ReadFile(filepath.Join(dir, IndexFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fetcherr.New(fetcherr.CodePathNotFound, "no %s in local registry %s", IndexFileName, dir)
		}
		return nil, fetcherr.Wrap(fetcherr.CodeSourceUnavailable, err, "reading local registry index in %s", dir)
	}

	idx := &registryIndex{}
	if err := yaml.Unmarshal(data, idx); err != nil {
		return nil, fetcherr.Wrap(fetcherr.CodeInvalidPackageLayout, err, "parsing %s in %s", IndexFileName, dir)
	}
	return idx, nil
}

func (LocalRegistry) ListVersions(ctx context.Context, src source.Source, name string) ([]*version.Version, error) {
	idx, err := loadIndex(src.Dir())
	if err != nil {
		return nil, err
	}

	entries, ok := idx.Packages[name]
	if !ok {
		return nil, fetcherr.New(fetcherr.CodePackageNotFound, "no package named %q in %s", name, src)
	}

	versions := make([]*version.Version, 0, len(entries))
	for _, e := range entries {
		v, err := version.Parse(e.Version)
		if err != nil {
			return nil, fetcherr.Wrap(fetcherr.CodeInvalidPackageLayout, err, "index entry for %q in %s", name, src)
		}
		versions = append(versions, v)
	}
	return versions, nil
}

func (LocalRegistry) Download(ctx context.Context, src source.Source, name string, ver *version.Version, dest string) error {
	idx, err := loadIndex(src.Dir())
	if err != nil {
		return err
	}

	entries, ok := idx.Packages[name]
	if !ok {
		return fetcherr.New(fetcherr.CodePackageNotFound, "no package named %q in %s", name, src)
	}

	var archive string
	for _, e := range entries {
		v, err := version.Parse(e.Version)
		if err != nil {
			continue
		}
		if v.Equal(ver) && v.Prerelease() == ver.Prerelease() {
			archive = e.Archive
			break
		}
	}
	if archive == "" {
		return fetcherr.New(fetcherr.CodePackageNotFound, "%s@%s not in %s", name, ver, src)
	}

	f, err := os.Open(filepath.Join(src.Dir(), archive))
	if err != nil {
		return fetcherr.Wrap(fetcherr.CodePathNotFound, err, "opening archive %s in %s", archive, src)
	}
	defer f.Close()

	prefix := fmt.Sprintf("%s-%s/", name, ver)
	if err := extractTarGz(f, dest, prefix); err != nil {
		return fmt.Errorf("extracting %s@%s: %w", name, ver, err)
	}
	return nil
}
