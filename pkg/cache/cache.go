// Package cache implements the shared on-disk package cache. Entries are
// keyed by package fingerprint and move through three states: absent,
// in-progress (materializing into a staging directory), and complete
// (published under packages/ with a marker file). Publication is a single
// rename, so concurrent readers never observe a partially written entry.
package cache

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"
	"github.com/pelletier/go-toml/v2"

	"github.com/pkgfetch/pkgfetch/pkg/fetcherr"
	"github.com/pkgfetch/pkgfetch/pkg/source"
	"github.com/pkgfetch/pkgfetch/pkg/store"
)

const (
	packagesDir = "packages"
	markersDir  = "markers"
	locksDir    = "locks"

	lockRetryDelay = 100 * time.Millisecond
)

// MaterializeFunc fills dest with the package contents. dest exists and is
// empty when called. The cache discards dest wholesale if the func returns
// an error.
type MaterializeFunc func(ctx context.Context, dest string) error

// entryMarker is the completion record written next to a published entry.
// Its presence, not the entry directory's, is what marks an entry complete.
type entryMarker struct {
	Name      string    `toml:"name"`
	Version   string    `toml:"version"`
	Commit    string    `toml:"commit,omitempty"`
	Source    string    `toml:"source"`
	FetchedAt time.Time `toml:"fetched_at"`

	// Integrity is a "sha256:<hex>" hash over the published contents.
	// Lookups only perform existence checks; the hash is recorded for
	// external auditing of a shared cache root.
	Integrity string `toml:"integrity"`
}

type Cache struct {
	store  store.Store
	logger *log.Logger

	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

// New opens (creating if necessary) a cache rooted at the store's root.
func New(s store.Store, logger *log.Logger) (*Cache, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	for _, dir := range []string{packagesDir, markersDir, locksDir} {
		if err := s.EnsureDir(dir); err != nil {
			return nil, fetcherr.Wrap(fetcherr.CodeInitialization, err, "preparing cache root %s", s.Root())
		}
	}
	return &Cache{
		store:    s,
		logger:   logger,
		inflight: make(map[string]*sync.Mutex),
	}, nil
}

// Root returns the cache root directory.
func (c *Cache) Root() string {
	return c.store.Root()
}

// GetOrFetch returns the on-disk root for pkg, materializing it first if
// no complete entry exists. Calls for the same fingerprint are serialized
// within the process and across processes, so at most one materialization
// runs per entry; every other caller blocks and then reuses the published
// result.
func (c *Cache) GetOrFetch(ctx context.Context, pkg source.Package, materialize MaterializeFunc) (string, error) {
	// Local paths are used in place. The caller has already validated the
	// layout, so there is nothing to copy into the cache.
	if pkg.Source.Kind() == source.KindPath {
		return pkg.Source.Dir(), nil
	}

	fp := pkg.Fingerprint()

	unlock := c.lockInProcess(fp)
	defer unlock()

	fileLock := flock.New(c.store.Path(locksDir, fp+".lock"))
	locked, err := fileLock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		// A lock file that cannot be taken means the cache root itself is
		// not usable, not that the source failed.
		return "", fetcherr.Wrap(fetcherr.CodeInitialization, err, "locking cache entry for %s", pkg)
	}
	if !locked {
		return "", fetcherr.New(fetcherr.CodeInitialization, "cache lock for %s not acquired", pkg)
	}
	defer fileLock.Unlock()

	root, ok, err := c.lookup(fp)
	if err != nil {
		return "", err
	}
	if ok {
		return root, nil
	}

	healing, err := c.reconcile(pkg, fp)
	if err != nil {
		return "", err
	}

	if err := c.materializeEntry(ctx, pkg, fp, materialize); err != nil {
		if healing {
			return "", fetcherr.Wrap(fetcherr.CodeCacheCorruption, err, "refetch after corrupt cache entry for %s", pkg)
		}
		return "", err
	}
	return c.store.Path(packagesDir, fp), nil
}

// Contains reports whether a complete entry for pkg exists.
func (c *Cache) Contains(pkg source.Package) (bool, error) {
	if pkg.Source.Kind() == source.KindPath {
		return false, nil
	}
	_, ok, err := c.lookup(pkg.Fingerprint())
	return ok, err
}

// Clear removes every entry, marker, lock, and staged directory.
func (c *Cache) Clear() error {
	for _, dir := range []string{packagesDir, markersDir, locksDir, store.TempDirName} {
		if err := c.store.Remove(dir); err != nil {
			return fetcherr.Wrap(fetcherr.CodeCacheCorruption, err, "clearing cache at %s", c.store.Root())
		}
	}
	return nil
}

func (c *Cache) lockInProcess(fp string) func() {
	c.mu.Lock()
	m, ok := c.inflight[fp]
	if !ok {
		m = &sync.Mutex{}
		c.inflight[fp] = m
	}
	c.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// lookup returns the entry root for fp if both the completion marker and
// the entry directory are present.
func (c *Cache) lookup(fp string) (string, bool, error) {
	hasMarker, err := c.store.Exists(markersDir, fp+".toml")
	if err != nil {
		return "", false, fetcherr.Wrap(fetcherr.CodeCacheCorruption, err, "reading cache marker for %s", fp)
	}
	if !hasMarker {
		return "", false, nil
	}
	hasRoot, err := c.store.Exists(packagesDir, fp)
	if err != nil {
		return "", false, fetcherr.Wrap(fetcherr.CodeCacheCorruption, err, "reading cache entry for %s", fp)
	}
	if !hasRoot {
		return "", false, nil
	}
	return c.store.Path(packagesDir, fp), true, nil
}

// reconcile clears out half-states before a fresh materialization: a marker
// without its entry directory (corruption, self-healed by refetching) or an
// entry directory without its marker (a crash between rename and marker
// write). Reports whether a corrupt marker was found.
func (c *Cache) reconcile(pkg source.Package, fp string) (bool, error) {
	hasMarker, err := c.store.Exists(markersDir, fp+".toml")
	if err != nil {
		return false, fetcherr.Wrap(fetcherr.CodeCacheCorruption, err, "reading cache marker for %s", fp)
	}
	if hasMarker {
		c.logger.Warn("cache entry missing on disk, refetching", "package", pkg.String())
		if err := c.store.Remove(markersDir, fp+".toml"); err != nil {
			return false, fetcherr.Wrap(fetcherr.CodeCacheCorruption, err, "removing stale marker for %s", fp)
		}
		return true, nil
	}
	hasRoot, err := c.store.Exists(packagesDir, fp)
	if err != nil {
		return false, fetcherr.Wrap(fetcherr.CodeCacheCorruption, err, "reading cache entry for %s", fp)
	}
	if hasRoot {
		if err := c.store.Remove(packagesDir, fp); err != nil {
			return false, fetcherr.Wrap(fetcherr.CodeCacheCorruption, err, "removing unmarked entry for %s", fp)
		}
	}
	return false, nil
}

func (c *Cache) materializeEntry(ctx context.Context, pkg source.Package, fp string, materialize MaterializeFunc) error {
	staging, err := c.store.TempDir("fetch-*")
	if err != nil {
		return fetcherr.Wrap(fetcherr.CodeCacheCorruption, err, "staging cache entry for %s", pkg)
	}

	if err := materialize(ctx, staging); err != nil {
		// Roll back to absent; a later call starts over.
		os.RemoveAll(staging)
		return err
	}

	if err := c.store.Publish(staging, packagesDir, fp); err != nil {
		os.RemoveAll(staging)
		return fetcherr.Wrap(fetcherr.CodeCacheCorruption, err, "publishing cache entry for %s", pkg)
	}
	if err := c.writeMarker(pkg, fp); err != nil {
		return err
	}
	c.logger.Debug("cached package", "package", pkg.String(), "fingerprint", fp)
	return nil
}

func (c *Cache) writeMarker(pkg source.Package, fp string) error {
	integrity, err := c.store.HashDir(packagesDir, fp)
	if err != nil {
		return fetcherr.Wrap(fetcherr.CodeCacheCorruption, err, "hashing cache entry for %s", pkg)
	}
	marker := entryMarker{
		Name:      pkg.Name,
		Version:   pkg.Version.String(),
		Commit:    pkg.Commit,
		Source:    pkg.Source.String(),
		FetchedAt: time.Now().UTC(),
		Integrity: integrity,
	}
	data, err := toml.Marshal(marker)
	if err != nil {
		return fetcherr.Wrap(fetcherr.CodeCacheCorruption, err, "encoding cache marker for %s", pkg)
	}
	if err := c.store.WriteFile(data, 0o644, markersDir, fp+".toml"); err != nil {
		return fetcherr.Wrap(fetcherr.CodeCacheCorruption, err, "writing cache marker for %s", pkg)
	}
	return nil
}
