package backend

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkgfetch/pkgfetch/pkg/fetcherr"
	"github.com/pkgfetch/pkgfetch/pkg/source"
)

// requireGit skips the test if git is not available.
func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH")
	}
}

// setupRepo creates a git repo with a single commit containing a
// package.toml and a source file. It creates a lightweight tag "v1.0.0"
// and an annotated tag "v2.0.0" pointing at the same commit. Returns the
// repo's working directory and the commit hash.
func setupRepo(t *testing.T) (repoDir string, commit string) {
	t.Helper()

	workDir := filepath.Join(t.TempDir(), "work")

	for _, args := range [][]string{
		{"init", "--initial-branch=main", workDir},
		{"-C", workDir, "config", "user.email", "test@test.com"},
		{"-C", workDir, "config", "user.name", "Test"},
	} {
		if out, err := exec.Command("git", args...).CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}

	os.WriteFile(filepath.Join(workDir, "package.toml"), []byte("[package]\nname = \"regex\"\nversion = \"1.0.0\"\n"), 0o644)
	os.MkdirAll(filepath.Join(workDir, "src"), 0o755)
	os.WriteFile(filepath.Join(workDir, "src", "lib.rs"), []byte("pub fn re() {}"), 0o644)

	for _, args := range [][]string{
		{"-C", workDir, "add", "."},
		{"-C", workDir, "commit", "-m", "initial commit"},
		{"-C", workDir, "tag", "v1.0.0"},
		{"-C", workDir, "tag", "-a", "v2.0.0", "-m", "version 2.0.0"},
	} {
		if out, err := exec.Command("git", args...).CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}

	out, err := exec.Command("git", "-C", workDir, "rev-parse", "HEAD").Output()
	if err != nil {
		t.Fatalf("git rev-parse HEAD: %v", err)
	}
	return workDir, strings.TrimSpace(string(out))
}

// gitSource builds a git Source for a local repo via its file:// URL.
func gitSource(t *testing.T, repoDir string, ref source.GitReference) source.Source {
	t.Helper()
	src, err := source.Git("file://"+repoDir, ref)
	if err != nil {
		t.Fatalf("building git source for %s: %v", repoDir, err)
	}
	return src
}

func TestResolveReference(t *testing.T) {
	requireGit(t)
	repo, commit := setupRepo(t)

	tests := map[string]source.GitReference{
		"default branch":  source.DefaultBranch(),
		"branch":          source.Branch("main"),
		"lightweight tag": source.Tag("v1.0.0"),
		"annotated tag":   source.Tag("v2.0.0"),
		"full revision":   source.Revision(commit),
		"short revision":  source.Revision(commit[:8]),
	}

	g := NewGit()
	for name, ref := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := g.ResolveReference(context.Background(), gitSource(t, repo, ref))
			if err != nil {
				t.Fatalf("ResolveReference: %v", err)
			}
			if got != commit {
				t.Errorf("resolved %q, want %q", got, commit)
			}
		})
	}
}

func TestResolveReferenceNotFound(t *testing.T) {
	requireGit(t)
	repo, _ := setupRepo(t)

	g := NewGit()
	_, err := g.ResolveReference(context.Background(), gitSource(t, repo, source.Tag("v9.9.9")))
	if err == nil {
		t.Fatal("expected error")
	}
	if !fetcherr.Is(err, fetcherr.CodeRevisionNotFound) {
		t.Errorf("error code = %q, want REVISION_NOT_FOUND", fetcherr.GetCode(err))
	}
}

func TestResolveReferenceUnreachableRepo(t *testing.T) {
	requireGit(t)

	missing := filepath.Join(t.TempDir(), "no-such-repo")
	g := NewGit()
	_, err := g.ResolveReference(context.Background(), gitSource(t, missing, source.Branch("main")))
	if err == nil {
		t.Fatal("expected error")
	}
	if !fetcherr.Is(err, fetcherr.CodeSourceUnavailable) {
		t.Errorf("error code = %q, want SOURCE_UNAVAILABLE", fetcherr.GetCode(err))
	}
}

// advanceBranch adds a commit on the repo's checked-out branch and returns
// the new head.
func advanceBranch(t *testing.T, repoDir string) string {
	t.Helper()

	os.WriteFile(filepath.Join(repoDir, "src", "extra.rs"), []byte("pub fn extra() {}"), 0o644)
	for _, args := range [][]string{
		{"-C", repoDir, "add", "."},
		{"-C", repoDir, "commit", "-m", "add extra module"},
	} {
		if out, err := exec.Command("git", args...).CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}

	out, err := exec.Command("git", "-C", repoDir, "rev-parse", "HEAD").Output()
	if err != nil {
		t.Fatalf("git rev-parse HEAD: %v", err)
	}
	return strings.TrimSpace(string(out))
}

func TestClone(t *testing.T) {
	requireGit(t)
	repo, commit := setupRepo(t)

	tests := map[string]source.GitReference{
		"by branch":   source.Branch("main"),
		"by tag":      source.Tag("v1.0.0"),
		"by revision": source.Revision(commit),
	}

	g := NewGit()
	for name, ref := range tests {
		t.Run(name, func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "checkout")
			if err := g.Clone(context.Background(), gitSource(t, repo, ref), commit, dest); err != nil {
				t.Fatalf("Clone: %v", err)
			}
			if _, err := os.Stat(filepath.Join(dest, "package.toml")); err != nil {
				t.Errorf("cloned manifest missing: %v", err)
			}
			if _, err := os.Stat(filepath.Join(dest, "src", "lib.rs")); err != nil {
				t.Errorf("cloned source missing: %v", err)
			}
		})
	}
}

func TestCloneBranchMovedAfterResolution(t *testing.T) {
	requireGit(t)
	repo, pinned := setupRepo(t)

	// The branch advances between reference resolution and clone; the
	// checkout must still be the pinned commit, not the new tip.
	moved := advanceBranch(t, repo)
	if moved == pinned {
		t.Fatal("branch did not advance")
	}

	dest := filepath.Join(t.TempDir(), "checkout")
	g := NewGit()
	if err := g.Clone(context.Background(), gitSource(t, repo, source.Branch("main")), pinned, dest); err != nil {
		t.Fatalf("Clone: %v", err)
	}

	out, err := exec.Command("git", "-C", dest, "rev-parse", "HEAD").Output()
	if err != nil {
		t.Fatalf("git rev-parse HEAD: %v", err)
	}
	if got := strings.TrimSpace(string(out)); got != pinned {
		t.Errorf("checked out %s, want pinned %s", got, pinned)
	}
	if _, err := os.Stat(filepath.Join(dest, "src", "extra.rs")); !os.IsNotExist(err) {
		t.Error("contents from past the pinned commit are present")
	}
}
