package source

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkgfetch/pkgfetch/pkg/fetcherr"
)

func TestConstructors(t *testing.T) {
	tests := map[string]struct {
		build   func() (Source, error)
		wantErr bool
		check   func(t *testing.T, s Source)
	}{
		"crates-io": {
			build: func() (Source, error) { return CratesIO(), nil },
			check: func(t *testing.T, s Source) {
				if s.Kind() != KindCratesIO {
					t.Errorf("Kind = %s", s.Kind())
				}
				if s.URL() != DefaultRegistryURL {
					t.Errorf("URL = %q", s.URL())
				}
			},
		},
		"registry normalizes URL": {
			build: func() (Source, error) { return Registry("HTTPS://Registry.Example.com/index/") },
			check: func(t *testing.T, s Source) {
				if s.URL() != "https://registry.example.com/index" {
					t.Errorf("URL = %q", s.URL())
				}
			},
		},
		"registry rejects bad scheme": {
			build:   func() (Source, error) { return Registry("ftp://example.com") },
			wantErr: true,
		},
		"registry rejects missing host": {
			build:   func() (Source, error) { return Registry("https://") },
			wantErr: true,
		},
		"git https": {
			build: func() (Source, error) { return Git("https://github.com/rust-lang/regex.git", Branch("next")) },
			check: func(t *testing.T, s Source) {
				if s.Kind() != KindGit {
					t.Errorf("Kind = %s", s.Kind())
				}
				if s.GitRef() != Branch("next") {
					t.Errorf("GitRef = %v", s.GitRef())
				}
			},
		},
		"git ssh shorthand": {
			build: func() (Source, error) { return Git("git@github.com:rust-lang/regex.git", DefaultBranch()) },
			check: func(t *testing.T, s Source) {
				if s.URL() != "git@github.com:rust-lang/regex.git" {
					t.Errorf("URL = %q", s.URL())
				}
			},
		},
		"git rejects garbage": {
			build:   func() (Source, error) { return Git("://nope", DefaultBranch()) },
			wantErr: true,
		},
		"path becomes absolute": {
			build: func() (Source, error) { return Path("some/local/dependency") },
			check: func(t *testing.T, s Source) {
				if !filepath.IsAbs(s.Dir()) {
					t.Errorf("Dir = %q, want absolute", s.Dir())
				}
				if !s.IsLocal() {
					t.Error("path source should be local")
				}
			},
		},
		"path rejects empty": {
			build:   func() (Source, error) { return Path("  ") },
			wantErr: true,
		},
		"local registry": {
			build: func() (Source, error) { return LocalRegistry("./registry") },
			check: func(t *testing.T, s Source) {
				if s.Kind() != KindLocalRegistry {
					t.Errorf("Kind = %s", s.Kind())
				}
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			s, err := tc.build()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !fetcherr.Is(err, fetcherr.CodeInvalidSource) {
					t.Errorf("error code = %q, want INVALID_SOURCE", fetcherr.GetCode(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.check != nil {
				tc.check(t, s)
			}
		})
	}
}

func TestFingerprintStability(t *testing.T) {
	a, err := Registry("https://registry.example.com/index/")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Registry("HTTPS://registry.example.com/index")
	if err != nil {
		t.Fatal(err)
	}

	if a.Fingerprint() != b.Fingerprint() {
		t.Errorf("equivalent sources should share a fingerprint: %q vs %q", a.Fingerprint(), b.Fingerprint())
	}

	other, err := Registry("https://other.example.com")
	if err != nil {
		t.Fatal(err)
	}
	if a.Fingerprint() == other.Fingerprint() {
		t.Error("distinct registries should not share a fingerprint")
	}
}

func TestFingerprintSeparatesGitRefs(t *testing.T) {
	main, _ := Git("https://github.com/rust-lang/regex", Branch("main"))
	next, _ := Git("https://github.com/rust-lang/regex", Branch("next"))
	tag, _ := Git("https://github.com/rust-lang/regex", Tag("main"))

	if main.Fingerprint() == next.Fingerprint() {
		t.Error("different branches should partition separately")
	}
	if main.Fingerprint() == tag.Fingerprint() {
		t.Error("branch and tag with the same value should partition separately")
	}
}

func TestParseRef(t *testing.T) {
	sha := strings.Repeat("ab", 20)

	tests := map[string]struct {
		in      string
		want    GitReference
		wantErr bool
	}{
		"empty is default branch": {in: "", want: DefaultBranch()},
		"branch prefix":           {in: "branch=next", want: Branch("next")},
		"tag prefix":              {in: "tag=v1.0.0", want: Tag("v1.0.0")},
		"rev prefix":              {in: "rev=" + sha, want: Revision(sha)},
		"bare full hash":          {in: sha, want: Revision(sha)},
		"bare word is branch":     {in: "main", want: Branch("main")},
		"rev rejects non-hex":     {in: "rev=not-a-sha", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseRef(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRef(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("ParseRef(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseGitURL(t *testing.T) {
	tests := map[string]struct {
		in       string
		wantHost string
		wantPath string
	}{
		"https": {
			in:       "https://github.com/rust-lang/regex.git",
			wantHost: "github.com",
			wantPath: "rust-lang/regex",
		},
		"ssh shorthand": {
			in:       "git@gitlab.com:group/project.git",
			wantHost: "gitlab.com",
			wantPath: "group/project",
		},
		"no git suffix": {
			in:       "https://example.com/a/b",
			wantHost: "example.com",
			wantPath: "a/b",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			host, path, err := ParseGitURL(tc.in)
			if err != nil {
				t.Fatalf("ParseGitURL(%q): %v", tc.in, err)
			}
			if host != tc.wantHost || path != tc.wantPath {
				t.Errorf("ParseGitURL(%q) = (%q, %q), want (%q, %q)", tc.in, host, path, tc.wantHost, tc.wantPath)
			}
		})
	}
}
