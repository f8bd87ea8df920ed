// Package fetch downloads a dataset once and serves later requests from a
// local cache.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"

	"github.com/banshee-data/msod/internal/fsutil"
	"github.com/banshee-data/msod/internal/httputil"
	"github.com/banshee-data/msod/internal/monitoring"
)

// MaxSize caps a single download.
const MaxSize = 256 << 20 // 256 MiB

// Fetcher downloads URLs into CacheDir.
type Fetcher struct {
	Client   httputil.HTTPClient
	FS       fsutil.FileSystem
	CacheDir string
}

// New returns a Fetcher using the default HTTP client and the OS filesystem.
func New(cacheDir string) *Fetcher {
	return &Fetcher{
		Client:   httputil.NewStandardClient(nil),
		FS:       fsutil.OSFileSystem{},
		CacheDir: cacheDir,
	}
}

// CachePath returns where rawURL is cached. The name keeps the URL's base
// name for readability, prefixed by a hash of the full URL.
func (f *Fetcher) CachePath(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	name := "download"
	if u, err := url.Parse(rawURL); err == nil {
		if b := path.Base(u.Path); b != "." && b != "/" {
			name = b
		}
	}
	return filepath.Join(f.CacheDir, hex.EncodeToString(sum[:6])+"-"+name)
}

// Fetch returns the local path of rawURL, downloading it first if it is not
// cached. The file only appears under its final name once complete.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}

	dst := f.CachePath(rawURL)
	if f.FS.Exists(dst) {
		monitoring.Logf("using cached %s", dst)
		return dst, nil
	}
	if err := f.FS.MkdirAll(f.CacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("download %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxSize+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rawURL, err)
	}
	if len(data) > MaxSize {
		return "", fmt.Errorf("download %s exceeds %d bytes", rawURL, MaxSize)
	}

	tmp := dst + ".part"
	if err := f.FS.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.FS.Rename(tmp, dst); err != nil {
		_ = f.FS.Remove(tmp)
		return "", fmt.Errorf("rename %s: %w", tmp, err)
	}
	monitoring.Logf("downloaded %s (%d bytes) to %s", rawURL, len(data), dst)
	return dst, nil
}
