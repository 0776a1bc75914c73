package backend

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/pkgfetch/pkgfetch/pkg/fetcherr"
)

// extractTarGz unpacks a gzip'd tar stream into dest. Archives carry a
// single top-level "{name}-{version}/" directory; stripPrefix removes it so
// the package contents land at the root of dest. Entries outside the
// prefix, absolute paths, and parent-dir traversals are rejected.
func extractTarGz(r io.Reader, dest, stripPrefix string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fetcherr.Wrap(fetcherr.CodeInvalidPackageLayout, err, "archive is not gzip compressed")
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fetcherr.Wrap(fetcherr.CodeInvalidPackageLayout, err, "reading archive")
		}

		rel, err := entryPath(hdr.Name, stripPrefix)
		if err != nil {
			return err
		}
		if rel == "" {
			continue
		}
		target := filepath.Join(dest, filepath.FromSlash(rel))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("creating parent of %s: %w", target, err)
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)&0o777)
			if err != nil {
				return fmt.Errorf("creating %s: %w", target, err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return fmt.Errorf("writing %s: %w", target, err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("closing %s: %w", target, err)
			}
		default:
			// Symlinks and special files are not part of the archive
			// format packages publish; skip them.
		}
	}
}

// entryPath validates one archive member name and returns its destination
// path relative to the extraction root, or "" to skip the entry.
func entryPath(name, stripPrefix string) (string, error) {
	clean := strings.TrimPrefix(name, "./")
	if clean == "" || clean == stripPrefix || clean+"/" == stripPrefix {
		return "", nil
	}
	if strings.HasPrefix(clean, "/") {
		return "", fetcherr.New(fetcherr.CodeInvalidPackageLayout, "archive entry %q has an absolute path", name)
	}
	if stripPrefix != "" {
		if !strings.HasPrefix(clean, stripPrefix) {
			return "", fetcherr.New(fetcherr.CodeInvalidPackageLayout, "archive entry %q outside expected root %q", name, stripPrefix)
		}
		clean = strings.TrimPrefix(clean, stripPrefix)
		if clean == "" {
			return "", nil
		}
	}
	for _, part := range strings.Split(clean, "/") {
		if part == ".." {
			return "", fetcherr.New(fetcherr.CodeInvalidPackageLayout, "archive entry %q escapes the extraction root", name)
		}
	}
	return clean, nil
}
