// Package backend defines the source backend boundary: the per-source-kind
// capabilities the resolver and fetch cache consume, plus the shipped
// implementations (HTTP registry, git via the system git binary, local
// path, directory-backed local registry).
//
// Any conforming implementation may be substituted per source kind, which
// is how tests drive the cache and fetcher without network access.
package backend

import (
	"context"

	"github.com/pkgfetch/pkgfetch/pkg/fetcherr"
	"github.com/pkgfetch/pkgfetch/pkg/manifest"
	"github.com/pkgfetch/pkgfetch/pkg/source"
	"github.com/pkgfetch/pkgfetch/pkg/version"
)

// RegistryBackend lists and materializes versioned packages from a
// registry index.
type RegistryBackend interface {
	// ListVersions returns every available version of name, unordered.
	// Fails with PACKAGE_NOT_FOUND if the registry does not know the name,
	// SOURCE_UNAVAILABLE on network or auth failure.
	ListVersions(ctx context.Context, src source.Source, name string) ([]*version.Version, error)

	// Download materializes name@ver into dest, which exists and is empty.
	Download(ctx context.Context, src source.Source, name string, ver *version.Version, dest string) error
}

// GitBackend resolves references and materializes checkouts from git
// repositories.
type GitBackend interface {
	// ResolveReference resolves the source's reference to a full commit
	// hash. Fails with REVISION_NOT_FOUND if the reference does not exist,
	// SOURCE_UNAVAILABLE if the repository cannot be reached.
	ResolveReference(ctx context.Context, src source.Source) (string, error)

	// Clone materializes the repository at commit into dest.
	Clone(ctx context.Context, src source.Source, commit string, dest string) error
}

// LocalBackend validates packages that already live on the local
// filesystem; their contents are referenced in place, never copied.
type LocalBackend interface {
	// Validate confirms dir exists and holds a well-formed package, and
	// returns its manifest. Fails with PATH_NOT_FOUND or
	// INVALID_PACKAGE_LAYOUT.
	Validate(ctx context.Context, dir string) (*manifest.Manifest, error)
}

// Set bundles one backend per source kind. Zero fields fall back to the
// defaults at Fetcher construction; tests swap in fakes.
type Set struct {
	Registry      RegistryBackend // crates-io and remote registry sources
	LocalRegistry RegistryBackend // directory-backed registries
	Git           GitBackend
	Local         LocalBackend
}

// DefaultSet returns the shipped backend implementations.
func DefaultSet() Set {
	return Set{
		Registry:      NewHTTPRegistry(),
		LocalRegistry: NewLocalRegistry(),
		Git:           NewGit(),
		Local:         NewLocal(),
	}
}

// RegistryFor picks the registry backend responsible for src.
func (s Set) RegistryFor(src source.Source) (RegistryBackend, error) {
	switch src.Kind() {
	case source.KindCratesIO, source.KindRegistry:
		return s.Registry, nil
	case source.KindLocalRegistry:
		return s.LocalRegistry, nil
	default:
		return nil, fetcherr.New(fetcherr.CodeInvalidSource, "%s is not a registry source", src)
	}
}
