package backend

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/pkgfetch/pkgfetch/pkg/fetcherr"
)

// buildTarGz assembles a gzip'd tar archive whose file names are joined
// under prefix, mirroring the single-top-level-directory layout registry
// archives use.
func buildTarGz(t *testing.T, prefix string, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		body := files[name]
		hdr := &tar.Header{
			Name: prefix + name,
			Mode: 0o644,
			Size: int64(len(body)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("writing tar header: %v", err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("writing tar body: %v", err)
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractTarGz(t *testing.T) {
	archive := buildTarGz(t, "serde-1.0.0/", map[string]string{
		"package.toml": "[package]\nname = \"serde\"\nversion = \"1.0.0\"\n",
		"src/lib.rs":   "pub fn ser() {}",
	})

	dest := t.TempDir()
	if err := extractTarGz(bytes.NewReader(archive), dest, "serde-1.0.0/"); err != nil {
		t.Fatalf("extractTarGz: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dest, "src", "lib.rs"))
	if err != nil {
		t.Fatalf("reading extracted file: %v", err)
	}
	if string(data) != "pub fn ser() {}" {
		t.Errorf("extracted contents = %q", data)
	}
}

func TestExtractTarGzRejectsBadArchives(t *testing.T) {
	tests := map[string]struct {
		archive func(t *testing.T) []byte
		prefix  string
	}{
		"not gzip": {
			archive: func(t *testing.T) []byte { return []byte("plain text") },
			prefix:  "",
		},
		"entry outside prefix": {
			archive: func(t *testing.T) []byte {
				return buildTarGz(t, "other-2.0.0/", map[string]string{"f": "x"})
			},
			prefix: "serde-1.0.0/",
		},
		"parent traversal": {
			archive: func(t *testing.T) []byte {
				return buildTarGz(t, "serde-1.0.0/", map[string]string{"../escape": "x"})
			},
			prefix: "serde-1.0.0/",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := extractTarGz(bytes.NewReader(tc.archive(t)), t.TempDir(), tc.prefix)
			if err == nil {
				t.Fatal("expected error")
			}
			if !fetcherr.Is(err, fetcherr.CodeInvalidPackageLayout) {
				t.Errorf("error code = %q, want INVALID_PACKAGE_LAYOUT", fetcherr.GetCode(err))
			}
		})
	}
}

func TestEntryPath(t *testing.T) {
	tests := map[string]struct {
		name    string
		prefix  string
		want    string
		wantErr bool
	}{
		"inside prefix":       {name: "serde-1.0.0/src/lib.rs", prefix: "serde-1.0.0/", want: "src/lib.rs"},
		"prefix dir itself":   {name: "serde-1.0.0/", prefix: "serde-1.0.0/", want: ""},
		"leading dot-slash":   {name: "./serde-1.0.0/f", prefix: "serde-1.0.0/", want: "f"},
		"no prefix mode":      {name: "plain/file", prefix: "", want: "plain/file"},
		"absolute path":       {name: "/etc/passwd", prefix: "", wantErr: true},
		"outside prefix":      {name: "other/f", prefix: "serde-1.0.0/", wantErr: true},
		"traversal component": {name: "a/../../b", prefix: "", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := entryPath(tc.name, tc.prefix)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("entryPath(%q) should fail", tc.name)
				}
				return
			}
			if err != nil {
				t.Fatalf("entryPath(%q): %v", tc.name, err)
			}
			if got != tc.want {
				t.Errorf("entryPath(%q) = %q, want %q", tc.name, got, tc.want)
			}
		})
	}
}
