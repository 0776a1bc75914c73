package backend

import (
	"context"

	"github.com/pkgfetch/pkgfetch/pkg/manifest"
)

// Local validates packages that already live on disk. Contents are
// referenced in place; nothing is copied into the cache.
type Local struct{}

var _ LocalBackend = Local{}

func NewLocal() Local {
	return Local{}
}

func (Local) Validate(ctx context.Context, dir string) (*manifest.Manifest, error) {
	// Existence and layout checks only; manifest.Load classifies missing
	// directories as PATH_NOT_FOUND and bad manifests as
	// INVALID_PACKAGE_LAYOUT.
	return manifest.Load(dir)
}
