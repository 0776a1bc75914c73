package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkgfetch/pkgfetch/pkg/fetcherr"
	"github.com/pkgfetch/pkgfetch/pkg/source"
	"github.com/pkgfetch/pkgfetch/pkg/version"
)

const (
	registryUserAgent = "pkgfetch/1.0 (https://github.com/pkgfetch/pkgfetch)"
	registryRetries   = 3
	registryBackoff   = 500 * time.Millisecond
)

// HTTPRegistry speaks the crates.io-style registry API:
//
//	GET {index}/crates/{name}                       -> version listing
//	GET {index}/crates/{name}/{version}/download    -> gzip'd tar archive
//
// All methods are safe for concurrent use. Transient failures (network
// errors, 5xx) are retried with a short backoff before surfacing as
// SOURCE_UNAVAILABLE.
type HTTPRegistry struct {
	client *http.Client
}

var _ RegistryBackend = (*HTTPRegistry)(nil)

func NewHTTPRegistry() *HTTPRegistry {
	return &HTTPRegistry{
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// NewHTTPRegistryWithClient allows substituting the HTTP client, used by
// tests against httptest servers.
func NewHTTPRegistryWithClient(client *http.Client) *HTTPRegistry {
	return &HTTPRegistry{client: client}
}

type versionsResponse struct {
	Versions []struct {
		Num    string `json:"num"`
		Yanked bool   `json:"yanked"`
	} `json:"versions"`
}

func (r *HTTPRegistry) ListVersions(ctx context.Context, src source.Source, name string) ([]*version.Version, error) {
	url := fmt.Sprintf("%s/crates/%s", src.URL(), name)

	var data versionsResponse
	if err := r.getJSON(ctx, url, &data); err != nil {
		if fetcherr.Is(err, fetcherr.CodePackageNotFound) {
			return nil, fetcherr.Wrap(fetcherr.CodePackageNotFound, err, "no package named %q in %s", name, src)
		}
		return nil, err
	}

	versions := make([]*version.Version, 0, len(data.Versions))
	for _, v := range data.Versions {
		if v.Yanked {
			continue
		}
		parsed, err := version.Parse(v.Num)
		if err != nil {
			// A registry entry the local semver rules cannot represent is
			// skipped rather than failing the whole listing.
			continue
		}
		versions = append(versions, parsed)
	}
	return versions, nil
}

func (r *HTTPRegistry) Download(ctx context.Context, src source.Source, name string, ver *version.Version, dest string) error {
	url := fmt.Sprintf("%s/crates/%s/%s/download", src.URL(), name, ver)

	resp, err := r.get(ctx, url)
	if err != nil {
		if fetcherr.Is(err, fetcherr.CodePackageNotFound) {
			return fetcherr.Wrap(fetcherr.CodePackageNotFound, err, "%s@%s not available from %s", name, ver, src)
		}
		return err
	}
	defer resp.Body.Close()

	prefix := fmt.Sprintf("%s-%s/", name, ver)
	if err := extractTarGz(resp.Body, dest, prefix); err != nil {
		return fmt.Errorf("extracting %s@%s: %w", name, ver, err)
	}
	return nil
}

func (r *HTTPRegistry) getJSON(ctx context.Context, url string, out any) error {
	resp, err := r.get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fetcherr.Wrap(fetcherr.CodeSourceUnavailable, err, "decoding response from %s", url)
	}
	return nil
}

// get performs a GET with retries on transient failures. The caller owns
// the response body on success.
func (r *HTTPRegistry) get(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < registryRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fetcherr.Wrap(fetcherr.CodeSourceUnavailable, ctx.Err(), "request to %s canceled", url)
			case <-time.After(registryBackoff * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fetcherr.Wrap(fetcherr.CodeSourceUnavailable, err, "building request for %s", url)
		}
		req.Header.Set("User-Agent", registryUserAgent)

		resp, err := r.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return resp, nil
		case resp.StatusCode == http.StatusNotFound:
			drain(resp)
			return nil, fetcherr.New(fetcherr.CodePackageNotFound, "%s returned 404", url)
		case resp.StatusCode >= 500:
			drain(resp)
			lastErr = fmt.Errorf("%s returned %s", url, resp.Status)
			continue
		default:
			drain(resp)
			return nil, fetcherr.New(fetcherr.CodeSourceUnavailable, "%s returned %s", url, resp.Status)
		}
	}
	return nil, fetcherr.Wrap(fetcherr.CodeSourceUnavailable, lastErr, "request to %s failed after %d attempts", url, registryRetries)
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
