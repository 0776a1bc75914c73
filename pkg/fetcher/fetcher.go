// Package fetcher is the top-level entry point: it wires backends, the
// resolver, and the on-disk cache together, and exposes single and batch
// fetch operations over them.
package fetcher

import (
	"context"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/pkgfetch/pkgfetch/pkg/backend"
	"github.com/pkgfetch/pkgfetch/pkg/cache"
	"github.com/pkgfetch/pkgfetch/pkg/fetcherr"
	"github.com/pkgfetch/pkgfetch/pkg/resolver"
	"github.com/pkgfetch/pkgfetch/pkg/source"
	"github.com/pkgfetch/pkgfetch/pkg/store"
)

const maxDefaultParallel = 8

// Config carries everything a Fetcher needs. CacheDir is required; zero
// Backends fields fall back to the shipped implementations.
type Config struct {
	CacheDir  string
	Backends  backend.Set
	Logger    *log.Logger
	GitPolicy resolver.GitConstraintPolicy
}

type Fetcher struct {
	backends backend.Set
	cache    *cache.Cache
	resolver *resolver.Resolver
	logger   *log.Logger
}

// New builds a Fetcher over the cache at cfg.CacheDir, creating it if
// necessary.
func New(cfg Config) (*Fetcher, error) {
	if cfg.CacheDir == "" {
		return nil, fetcherr.New(fetcherr.CodeInitialization, "cache directory not configured")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	backends := cfg.Backends
	defaults := backend.DefaultSet()
	if backends.Registry == nil {
		backends.Registry = defaults.Registry
	}
	if backends.LocalRegistry == nil {
		backends.LocalRegistry = defaults.LocalRegistry
	}
	if backends.Git == nil {
		backends.Git = defaults.Git
	}
	if backends.Local == nil {
		backends.Local = defaults.Local
	}

	c, err := cache.New(store.New(cfg.CacheDir), logger)
	if err != nil {
		return nil, err
	}

	return &Fetcher{
		backends: backends,
		cache:    c,
		resolver: resolver.New(backends, c, resolver.Options{GitPolicy: cfg.GitPolicy, Logger: logger}),
		logger:   logger,
	}, nil
}

// CacheRoot returns the directory the fetch cache lives in.
func (f *Fetcher) CacheRoot() string {
	return f.cache.Root()
}

// ClearCache removes every cached entry.
func (f *Fetcher) ClearCache() error {
	return f.cache.Clear()
}

// Resolve pins a query to a concrete package without fetching its
// contents, except for git sources, whose manifest can only be read from
// a materialized checkout.
func (f *Fetcher) Resolve(ctx context.Context, q source.Query) (source.Package, error) {
	return f.resolver.Resolve(ctx, q)
}

// Fetch resolves req if needed and materializes the package into the
// cache, returning the pinned package and its on-disk root.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (source.Package, string, error) {
	pkg, err := req.pin(ctx, f.resolver)
	if err != nil {
		return source.Package{}, "", err
	}
	root, err := f.materialize(ctx, pkg)
	if err != nil {
		return source.Package{}, "", err
	}
	f.logger.Info("fetched package", "package", pkg.String(), "root", root)
	return pkg, root, nil
}

func (f *Fetcher) materialize(ctx context.Context, pkg source.Package) (string, error) {
	switch pkg.Source.Kind() {
	case source.KindPath:
		if _, err := f.backends.Local.Validate(ctx, pkg.Source.Dir()); err != nil {
			return "", err
		}
		return f.cache.GetOrFetch(ctx, pkg, nil)
	case source.KindGit:
		if pkg.Commit == "" {
			return "", fetcherr.New(fetcherr.CodeInvalidSource, "%s is not pinned to a commit", pkg)
		}
		return f.cache.GetOrFetch(ctx, pkg, func(ctx context.Context, dest string) error {
			return f.backends.Git.Clone(ctx, pkg.Source, pkg.Commit, dest)
		})
	default:
		reg, err := f.backends.RegistryFor(pkg.Source)
		if err != nil {
			return "", err
		}
		return f.cache.GetOrFetch(ctx, pkg, func(ctx context.Context, dest string) error {
			return reg.Download(ctx, pkg.Source, pkg.Name, pkg.Version, dest)
		})
	}
}

// Request names one package to fetch: either an already pinned package or
// a query still to be resolved.
type Request struct {
	query  source.Query
	pinned *source.Package
}

// QueryRequest fetches whatever q resolves to.
func QueryRequest(q source.Query) Request {
	return Request{query: q}
}

// PackageRequest fetches an already pinned package.
func PackageRequest(pkg source.Package) Request {
	return Request{pinned: &pkg}
}

func (r Request) pin(ctx context.Context, res *resolver.Resolver) (source.Package, error) {
	if r.pinned != nil {
		return *r.pinned, nil
	}
	return res.Resolve(ctx, r.query)
}

// String describes the request before resolution, for failure reporting.
func (r Request) String() string {
	if r.pinned != nil {
		return r.pinned.String()
	}
	return r.query.String()
}

// Options tune a batch fetch. The zero value fetches every request with
// bounded default parallelism and no per-fetch timeout.
type Options struct {
	// FailFast cancels the remaining fetches after the first failure.
	FailFast bool
	// MaxParallel bounds concurrent fetches. Zero picks a default based
	// on the machine.
	MaxParallel int
	// Timeout bounds each individual fetch, not the whole batch.
	Timeout time.Duration
}

func (o Options) parallelism() int {
	if o.MaxParallel > 0 {
		return o.MaxParallel
	}
	n := runtime.NumCPU()
	if n > maxDefaultParallel {
		n = maxDefaultParallel
	}
	return n
}

// Report is the outcome of a batch fetch: the root directory of every
// package that landed, and one Failure per request that did not, in no
// particular order.
type Report struct {
	Roots    map[source.Identity]string
	Failures []Failure
}

// Failure records a single failed request. The request is kept rather than
// a pinned identity because a failed request may never have resolved to
// one.
type Failure struct {
	Request Request
	Err     error
}

func newReport() *Report {
	return &Report{
		Roots: make(map[source.Identity]string),
	}
}

// Failed reports whether any request in the batch failed.
func (r *Report) Failed() bool {
	return len(r.Failures) > 0
}

// FetchMany fetches every request concurrently. Identical packages across
// requests share a single cache entry and a single materialization. When
// opts.FailFast is set the first failure cancels the batch and is
// returned; otherwise all failures are collected in the report and the
// returned error is nil.
func (f *Fetcher) FetchMany(ctx context.Context, reqs []Request, opts Options) (*Report, error) {
	report := newReport()
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.parallelism())

	for _, req := range reqs {
		g.Go(func() error {
			fctx := gctx
			if opts.Timeout > 0 {
				var cancel context.CancelFunc
				fctx, cancel = context.WithTimeout(gctx, opts.Timeout)
				defer cancel()
			}

			pkg, root, err := f.Fetch(fctx, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				f.logger.Error("fetch failed", "request", req.String(), "err", err)
				report.Failures = append(report.Failures, Failure{Request: req, Err: err})
				if opts.FailFast {
					return err
				}
				return nil
			}
			report.Roots[pkg.Identity()] = root
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, nil
}
