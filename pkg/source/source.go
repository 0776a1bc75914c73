// Package source models where packages come from: the default public
// registry, alternate remote registries, directory-backed local registries,
// git repositories at a reference, and plain local paths.
//
// A Source is an immutable value constructed through one of the kind
// constructors. Construction validates syntax only; nothing is verified
// reachable until fetch time. Every Source exposes a Fingerprint that is a
// pure function of its normalized fields and stable across process runs,
// which the fetch cache uses as its partition key.
package source

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/pkgfetch/pkgfetch/pkg/fetcherr"
)

// DefaultRegistryURL is the API base of the default public registry.
const DefaultRegistryURL = "https://crates.io/api/v1"

// Kind discriminates the source variants.
type Kind int

const (
	KindCratesIO Kind = iota
	KindRegistry
	KindLocalRegistry
	KindGit
	KindPath
)

func (k Kind) String() string {
	switch k {
	case KindCratesIO:
		return "crates-io"
	case KindRegistry:
		return "registry"
	case KindLocalRegistry:
		return "local-registry"
	case KindGit:
		return "git"
	case KindPath:
		return "path"
	default:
		return "unknown"
	}
}

// Source identifies where a package can be fetched from. The zero value is
// not a valid source; use the constructors.
type Source struct {
	kind Kind
	url  string       // normalized index or repository URL (crates-io, registry, git)
	dir  string       // absolute cleaned path (local-registry, path)
	ref  GitReference // git only
}

// CratesIO returns the default public registry source.
func CratesIO() Source {
	return Source{kind: KindCratesIO, url: DefaultRegistryURL}
}

// Registry returns a remote registry source for the given index URL.
func Registry(indexURL string) (Source, error) {
	normalized, err := normalizeURL(indexURL)
	if err != nil {
		return Source{}, err
	}
	return Source{kind: KindRegistry, url: normalized}, nil
}

// LocalRegistry returns a registry source backed by a local directory
// holding an index file and package archives.
func LocalRegistry(dir string) (Source, error) {
	abs, err := normalizePath(dir)
	if err != nil {
		return Source{}, err
	}
	return Source{kind: KindLocalRegistry, dir: abs}, nil
}

// Git returns a git source for the repository URL at the given reference.
func Git(repoURL string, ref GitReference) (Source, error) {
	normalized, err := normalizeGitURL(repoURL)
	if err != nil {
		return Source{}, err
	}
	return Source{kind: KindGit, url: normalized, ref: ref}, nil
}

// Path returns a local filesystem source. The directory is normalized to an
// absolute cleaned path without following symlinks; it need not exist yet.
func Path(dir string) (Source, error) {
	abs, err := normalizePath(dir)
	if err != nil {
		return Source{}, err
	}
	return Source{kind: KindPath, dir: abs}, nil
}

// Kind returns the source variant.
func (s Source) Kind() Kind { return s.kind }

// URL returns the index or repository URL for registry and git sources,
// empty otherwise.
func (s Source) URL() string { return s.url }

// Dir returns the local directory for path and local-registry sources,
// empty otherwise.
func (s Source) Dir() string { return s.dir }

// GitRef returns the reference for git sources; the zero GitReference
// (default branch) otherwise.
func (s Source) GitRef() GitReference { return s.ref }

// IsLocal reports whether the source's contents already live on the local
// filesystem (path and local-registry kinds).
func (s Source) IsLocal() bool {
	return s.kind == KindPath || s.kind == KindLocalRegistry
}

func (s Source) String() string {
	switch s.kind {
	case KindCratesIO:
		return "crates-io"
	case KindRegistry:
		return "registry+" + s.url
	case KindLocalRegistry:
		return "local-registry+" + s.dir
	case KindGit:
		return fmt.Sprintf("git+%s#%s", s.url, s.ref)
	case KindPath:
		return "path+" + s.dir
	default:
		return "invalid"
	}
}

// Fingerprint returns a deterministic, collision-resistant identifier for
// the source, combining the kind discriminator with a digest of its
// normalized locator. Git fingerprints include the reference, so the same
// repository at two branches partitions separately.
func (s Source) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s", s.kind, s.locator(), s.ref.canonical())
	return fmt.Sprintf("%s-%s", s.kind, hex.EncodeToString(h.Sum(nil))[:16])
}

func (s Source) locator() string {
	if s.IsLocal() {
		return s.dir
	}
	return s.url
}

// normalizeURL validates and canonicalizes an http(s) URL: scheme and host
// lowercased, trailing slashes stripped, fragment dropped.
func normalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fetcherr.Wrap(fetcherr.CodeInvalidSource, err, "parsing URL %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fetcherr.New(fetcherr.CodeInvalidSource, "URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return "", fetcherr.New(fetcherr.CodeInvalidSource, "URL %q has no host", raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String(), nil
}

// normalizeGitURL accepts http(s) and file URLs plus SSH shorthand
// (git@host:owner/repo.git). URL forms are normalized; shorthand is kept
// verbatim apart from a trailing-slash trim.
func normalizeGitURL(raw string) (string, error) {
	if isSSHShorthand(raw) {
		return strings.TrimRight(raw, "/"), nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fetcherr.Wrap(fetcherr.CodeInvalidSource, err, "parsing git URL %q", raw)
	}
	switch u.Scheme {
	case "http", "https":
		return normalizeURL(raw)
	case "file":
		if u.Path == "" {
			return "", fetcherr.New(fetcherr.CodeInvalidSource, "git URL %q has no path", raw)
		}
		u.Path = strings.TrimRight(u.Path, "/")
		return u.String(), nil
	default:
		return "", fetcherr.New(fetcherr.CodeInvalidSource, "git URL %q must use http, https, or file", raw)
	}
}

// isSSHShorthand reports whether raw looks like git@host:owner/repo.git.
func isSSHShorthand(raw string) bool {
	idx := strings.Index(raw, ":")
	return idx > 0 && !strings.Contains(raw[:idx], "/") && !strings.Contains(raw, "://")
}

func normalizePath(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", fetcherr.New(fetcherr.CodeInvalidSource, "path must not be empty")
	}
	if strings.ContainsRune(dir, '\x00') {
		return "", fetcherr.New(fetcherr.CodeInvalidSource, "path %q contains a NUL byte", dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fetcherr.Wrap(fetcherr.CodeInvalidSource, err, "resolving absolute path for %q", dir)
	}
	return filepath.Clean(abs), nil
}

// ParseGitURL extracts the host and repository path from a git URL,
// supporting HTTPS URLs and SSH shorthand. Backends use it for cache
// segment naming and error messages.
func ParseGitURL(rawURL string) (host, repoPath string, err error) {
	if isSSHShorthand(rawURL) {
		idx := strings.Index(rawURL, ":")
		host = rawURL[:idx]
		if at := strings.Index(host, "@"); at >= 0 {
			host = host[at+1:]
		}
		repoPath = strings.TrimSuffix(rawURL[idx+1:], ".git")
		return host, repoPath, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fetcherr.Wrap(fetcherr.CodeInvalidSource, err, "parsing git URL %q", rawURL)
	}
	repoPath = strings.TrimPrefix(u.Path, "/")
	repoPath = strings.TrimSuffix(repoPath, ".git")
	return u.Host, repoPath, nil
}
