package fetch

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/msod/internal/fsutil"
	"github.com/banshee-data/msod/internal/httputil"
	"github.com/banshee-data/msod/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

const sample = "x,y,habitat,l1\n0,0,a,1\n1,0,b,0\n0,1,a,2\n"

func newFetcher() (*Fetcher, *httputil.MockHTTPClient, *fsutil.MemoryFileSystem) {
	client := httputil.NewMockHTTPClient()
	fs := fsutil.NewMemoryFileSystem()
	return &Fetcher{Client: client, FS: fs, CacheDir: "/cache"}, client, fs
}

func TestFetchDownloadsOnce(t *testing.T) {
	f, client, fs := newFetcher()
	client.AddResponse(http.StatusOK, sample)

	url := "https://example.org/data/genotypes.csv"
	path, err := f.Fetch(context.Background(), url)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, "/cache/"))
	assert.True(t, strings.HasSuffix(path, "-genotypes.csv"))

	data, err := fs.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sample, string(data))
	assert.False(t, fs.Exists(path+".part"))

	again, err := f.Fetch(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, 1, client.RequestCount())
	assert.Equal(t, url, client.Requests[0].URL.String())
}

func TestCachePathDistinguishesURLs(t *testing.T) {
	f, _, _ := newFetcher()
	a := f.CachePath("https://a.example/x.csv")
	b := f.CachePath("https://b.example/x.csv")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasSuffix(f.CachePath("https://a.example/"), "-download"))
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name  string
		url   string
		setup func(*httputil.MockHTTPClient)
		want  string
	}{
		{
			name:  "bad status",
			url:   "https://example.org/missing.csv",
			setup: func(c *httputil.MockHTTPClient) { c.AddResponse(http.StatusNotFound, "nope") },
			want:  "unexpected status 404",
		},
		{
			name:  "transport error",
			url:   "https://example.org/a.csv",
			setup: func(c *httputil.MockHTTPClient) { c.AddErrorResponse(errors.New("connection refused")) },
			want:  "connection refused",
		},
		{
			name:  "scheme",
			url:   "ftp://example.org/a.csv",
			setup: func(*httputil.MockHTTPClient) {},
			want:  "unsupported url scheme",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, client, fs := newFetcher()
			tt.setup(client)
			_, err := f.Fetch(context.Background(), tt.url)
			assert.ErrorContains(t, err, tt.want)
			assert.False(t, fs.Exists(f.CachePath(tt.url)))
		})
	}
}
