// Package resolver turns (name, constraint, source) queries into pinned
// packages. Registry sources pick the highest version satisfying the
// constraint; git sources pin the resolved commit; path sources pin
// whatever version the on-disk manifest declares.
package resolver

import (
	"context"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/pkgfetch/pkgfetch/pkg/backend"
	"github.com/pkgfetch/pkgfetch/pkg/cache"
	"github.com/pkgfetch/pkgfetch/pkg/fetcherr"
	"github.com/pkgfetch/pkgfetch/pkg/manifest"
	"github.com/pkgfetch/pkgfetch/pkg/source"
	"github.com/pkgfetch/pkgfetch/pkg/version"
)

// GitConstraintPolicy controls whether a version constraint on a git query
// is checked against the manifest at the resolved commit. The reference
// already pins the contents, so the check is advisory and can be turned
// off.
type GitConstraintPolicy int

const (
	// GitConstraintEnforce rejects a resolved commit whose manifest
	// version does not satisfy the query constraint.
	GitConstraintEnforce GitConstraintPolicy = iota
	// GitConstraintIgnore pins the commit regardless of the manifest
	// version.
	GitConstraintIgnore
)

type Options struct {
	GitPolicy GitConstraintPolicy
	Logger    *log.Logger
}

type Resolver struct {
	backends  backend.Set
	cache     *cache.Cache
	gitPolicy GitConstraintPolicy
	logger    *log.Logger
}

// New builds a resolver over the given backends. The cache is used to
// materialize git checkouts so their manifests can be read.
func New(backends backend.Set, c *cache.Cache, opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Resolver{
		backends:  backends,
		cache:     c,
		gitPolicy: opts.GitPolicy,
		logger:    logger,
	}
}

// Resolve pins q to a concrete package. Registry queries pick the highest
// matching version, git queries resolve the reference to a commit, and
// path queries read the manifest in place.
func (r *Resolver) Resolve(ctx context.Context, q source.Query) (source.Package, error) {
	switch q.Source.Kind() {
	case source.KindPath:
		return r.resolvePath(ctx, q)
	case source.KindGit:
		return r.resolveGit(ctx, q)
	default:
		return r.resolveRegistry(ctx, q)
	}
}

func (r *Resolver) resolvePath(ctx context.Context, q source.Query) (source.Package, error) {
	m, err := r.backends.Local.Validate(ctx, q.Source.Dir())
	if err != nil {
		return source.Package{}, err
	}
	if m.Name() != q.Name {
		return source.Package{}, fetcherr.New(fetcherr.CodePackageNotFound,
			"%s declares package %q, not %q", q.Source.Dir(), m.Name(), q.Name)
	}
	ver, err := m.Version()
	if err != nil {
		return source.Package{}, err
	}
	if !q.Constraint.Matches(ver) {
		return source.Package{}, fetcherr.New(fetcherr.CodeConstraintNotSatisfied,
			"%s is at %s, which does not satisfy %s", q.Name, ver, q.Constraint)
	}
	return source.NewPackage(q.Name, ver, q.Source)
}

func (r *Resolver) resolveGit(ctx context.Context, q source.Query) (source.Package, error) {
	commit, err := r.backends.Git.ResolveReference(ctx, q.Source)
	if err != nil {
		return source.Package{}, err
	}
	r.logger.Debug("resolved git reference", "source", q.Source.String(), "commit", commit)

	// The fingerprint of a git package is keyed by commit, not version,
	// so a provisional version is safe while the checkout is read.
	provisional := source.Package{
		Name:    q.Name,
		Version: version.MustParse("0.0.0"),
		Source:  q.Source,
		Commit:  commit,
	}
	root, err := r.cache.GetOrFetch(ctx, provisional, func(ctx context.Context, dest string) error {
		return r.backends.Git.Clone(ctx, q.Source, commit, dest)
	})
	if err != nil {
		return source.Package{}, err
	}

	m, err := manifest.Load(root)
	if err != nil {
		return source.Package{}, err
	}
	if m.Name() != q.Name {
		return source.Package{}, fetcherr.New(fetcherr.CodePackageNotFound,
			"%s at %s declares package %q, not %q", q.Source, commit[:12], m.Name(), q.Name)
	}
	ver, err := m.Version()
	if err != nil {
		return source.Package{}, err
	}
	if r.gitPolicy == GitConstraintEnforce && !q.Constraint.Matches(ver) {
		return source.Package{}, fetcherr.New(fetcherr.CodeConstraintNotSatisfied,
			"%s at %s is version %s, which does not satisfy %s", q.Name, commit[:12], ver, q.Constraint)
	}

	pkg, err := source.NewPackage(q.Name, ver, q.Source)
	if err != nil {
		return source.Package{}, err
	}
	pkg.Commit = commit
	return pkg, nil
}

func (r *Resolver) resolveRegistry(ctx context.Context, q source.Query) (source.Package, error) {
	reg, err := r.backends.RegistryFor(q.Source)
	if err != nil {
		return source.Package{}, err
	}
	available, err := reg.ListVersions(ctx, q.Source, q.Name)
	if err != nil {
		return source.Package{}, err
	}

	var matching []*version.Version
	for _, v := range available {
		if q.Constraint.Matches(v) {
			matching = append(matching, v)
		}
	}
	if len(matching) == 0 {
		return source.Package{}, fetcherr.New(fetcherr.CodeConstraintNotSatisfied,
			"no version of %s satisfies %s (available: %s)", q.Name, q.Constraint, versionList(available))
	}

	picked := version.Max(matching)
	r.logger.Debug("resolved registry version", "package", q.Name, "constraint", q.Constraint.String(), "version", picked.String())
	return source.NewPackage(q.Name, picked, q.Source)
}

func versionList(versions []*version.Version) string {
	if len(versions) == 0 {
		return "none"
	}
	version.Sort(versions)
	parts := make([]string, len(versions))
	for i, v := range versions {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}
