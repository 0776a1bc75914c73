package source

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkgfetch/pkgfetch/pkg/fetcherr"
	"github.com/pkgfetch/pkgfetch/pkg/version"
)

// Package is a pinned package: a name, a concrete version, and the source
// it resolves against. Values are immutable once constructed. Two packages
// are the same iff name, version, and source are all equal.
type Package struct {
	Name    string
	Version *version.Version
	Source  Source

	// Commit is the concrete commit a git reference resolved to. Empty for
	// non-git sources.
	Commit string
}

// NewPackage constructs a pinned package. The name must be non-empty.
func NewPackage(name string, ver *version.Version, src Source) (Package, error) {
	if strings.TrimSpace(name) == "" {
		return Package{}, fetcherr.New(fetcherr.CodeInvalidSource, "package name must not be empty")
	}
	if ver == nil {
		return Package{}, fetcherr.New(fetcherr.CodeInvalidVersion, "package %q has no version", name)
	}
	return Package{Name: name, Version: ver, Source: src}, nil
}

// ParsePackage is NewPackage with the version given as a string.
func ParsePackage(name, ver string, src Source) (Package, error) {
	v, err := version.Parse(ver)
	if err != nil {
		return Package{}, err
	}
	return NewPackage(name, v, src)
}

func (p Package) String() string {
	return fmt.Sprintf("%s@%s (%s)", p.Name, p.Version, p.Source)
}

// Identity is the comparable form of a package, usable as a map key.
type Identity struct {
	Name    string
	Version string
	Source  Source
}

func (i Identity) String() string {
	return fmt.Sprintf("%s@%s (%s)", i.Name, i.Version, i.Source)
}

// Identity returns the package's comparable identity.
func (p Package) Identity() Identity {
	ver := ""
	if p.Version != nil {
		ver = p.Version.String()
	}
	return Identity{Name: p.Name, Version: ver, Source: p.Source}
}

// pinned returns the concrete revision the cache keys on: the resolved
// commit for git sources, the semver string otherwise.
func (p Package) pinned() string {
	if p.Source.Kind() == KindGit && p.Commit != "" {
		return p.Commit
	}
	if p.Version == nil {
		return ""
	}
	return p.Version.String()
}

// Fingerprint returns the cache entry key for this package: a digest over
// the source kind, normalized locator, package name, and the resolved
// version or commit, prefixed with a readable name-version slug.
func (p Package) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s", p.Source.Fingerprint(), p.Name, p.pinned())

	slug := p.pinned()
	if p.Source.Kind() == KindGit && len(slug) > 12 {
		slug = slug[:12]
	}
	return fmt.Sprintf("%s-%s-%s", sanitizeSegment(p.Name), sanitizeSegment(slug), hex.EncodeToString(h.Sum(nil))[:16])
}

// Query is a package request that still carries a constraint instead of a
// pinned version; the resolver turns it into a Package.
type Query struct {
	Name       string
	Constraint version.Constraint
	Source     Source
}

// NewQuery constructs a resolver query. The name must be non-empty.
func NewQuery(name string, constraint version.Constraint, src Source) (Query, error) {
	if strings.TrimSpace(name) == "" {
		return Query{}, fetcherr.New(fetcherr.CodeInvalidSource, "package name must not be empty")
	}
	return Query{Name: name, Constraint: constraint, Source: src}, nil
}

func (q Query) String() string {
	return fmt.Sprintf("%s@%s (%s)", q.Name, q.Constraint, q.Source)
}

// sanitizeSegment maps a name or version to a filesystem-safe directory
// segment.
func sanitizeSegment(s string) string {
	if s == "" {
		return "_"
	}
	var b strings.Builder
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.':
			b.WriteRune(c)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
