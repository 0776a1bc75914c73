package backend

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/pkgfetch/pkgfetch/pkg/fetcherr"
	"github.com/pkgfetch/pkgfetch/pkg/source"
)

// Git materializes packages from git repositories using the system git
// binary: ls-remote for reference resolution, shallow clone or
// fetch-by-SHA for checkouts.
type Git struct{}

var _ GitBackend = Git{}

func NewGit() Git {
	return Git{}
}

// ResolveReference resolves the source's reference to a full 40-char
// commit hash. Full revisions are returned as-is; short revisions are
// expanded by prefix-matching the remote's advertised commits; branches,
// tags, and the default branch go through ls-remote.
func (Git) ResolveReference(ctx context.Context, src source.Source) (string, error) {
	ref := src.GitRef()

	switch ref.Kind {
	case source.RefRevision:
		if source.IsCommitHash(ref.Value) {
			return ref.Value, nil
		}
		return resolveShortHash(ctx, src.URL(), ref.Value)
	case source.RefDefaultBranch:
		return lsRemote(ctx, src.URL(), "HEAD")
	case source.RefBranch, source.RefTag:
		return lsRemote(ctx, src.URL(), ref.Value)
	default:
		return "", fetcherr.New(fetcherr.CodeInvalidSource, "unknown git reference kind %d", ref.Kind)
	}
}

// lsRemote resolves a named ref via git ls-remote. For annotated tags, the
// dereferenced "^{}" entry pointing at the underlying commit wins.
func lsRemote(ctx context.Context, repo, refName string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "ls-remote", repo, refName, refName+"^{}")
	out, err := cmd.Output()
	if err != nil {
		return "", fetcherr.Wrap(fetcherr.CodeSourceUnavailable, execError(err), "listing refs of %s", repo)
	}

	var commit string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		commit = fields[0]
		if strings.HasSuffix(fields[1], "^{}") {
			return fields[0], nil
		}
	}

	if commit == "" {
		return "", fetcherr.New(fetcherr.CodeRevisionNotFound, "ref %q not found in %s", refName, repo)
	}
	return commit, nil
}

// resolveShortHash expands an abbreviated commit hash by listing all refs
// and prefix-matching their commit hashes.
func resolveShortHash(ctx context.Context, repo, short string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "ls-remote", repo)
	out, err := cmd.Output()
	if err != nil {
		return "", fetcherr.Wrap(fetcherr.CodeSourceUnavailable, execError(err), "listing refs of %s", repo)
	}

	prefix := strings.ToLower(short)
	var match string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		hash := strings.ToLower(fields[0])
		if !strings.HasPrefix(hash, prefix) {
			continue
		}
		if match != "" && match != hash {
			return "", fetcherr.New(fetcherr.CodeRevisionNotFound, "short hash %q is ambiguous in %s", short, repo)
		}
		match = hash
	}

	if match == "" {
		return "", fetcherr.New(fetcherr.CodeRevisionNotFound, "short hash %q not found in %s", short, repo)
	}
	return match, nil
}

// Clone materializes the repository at commit into dest. The commit is
// always fetched directly, never by ref name: a branch or tag may have
// moved since the reference was resolved, and the cache entry is keyed by
// the pinned commit. The shallow fetch-by-SHA needs the server to allow
// reachable-SHA fetches (GitHub, GitLab, and Bitbucket do); servers that
// refuse fall back to a full clone plus checkout.
func (Git) Clone(ctx context.Context, src source.Source, commit, dest string) error {
	err := runGitSteps(ctx, src.URL(), [][]string{
		{"init", dest},
		{"-C", dest, "remote", "add", "origin", src.URL()},
		{"-C", dest, "fetch", "--depth", "1", "origin", commit},
		{"-C", dest, "checkout", "FETCH_HEAD"},
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	os.RemoveAll(dest)
	return runGitSteps(ctx, src.URL(), [][]string{
		{"clone", src.URL(), dest},
		{"-C", dest, "checkout", commit},
	})
}

func runGitSteps(ctx context.Context, repo string, steps [][]string) error {
	for _, args := range steps {
		cmd := exec.CommandContext(ctx, "git", args...)
		if _, err := cmd.Output(); err != nil {
			return fetcherr.Wrap(fetcherr.CodeSourceUnavailable, execError(err), "cloning %s", repo)
		}
	}
	return nil
}

// execError surfaces git's stderr alongside the exit status.
func execError(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
	}
	return err
}
