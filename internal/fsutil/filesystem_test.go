package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSFileSystem_RoundTrip(t *testing.T) {
	osfs := OSFileSystem{}
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "genotypes.csv")

	require.NoError(t, osfs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, osfs.WriteFile(path+".tmp", []byte("x,y\n"), 0o644))
	require.NoError(t, osfs.Rename(path+".tmp", path))

	assert.True(t, osfs.Exists(path))
	assert.False(t, osfs.Exists(path+".tmp"))

	data, err := osfs.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x,y\n", string(data))

	require.NoError(t, osfs.Remove(path))
	assert.False(t, osfs.Exists(path))
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem()

	require.NoError(t, mfs.WriteFile("/test.txt", []byte("hello, world"), 0644))

	data, err := mfs.ReadFile("/test.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello, world", string(data))

	f, err := mfs.Open("/test.txt")
	require.NoError(t, err)
	defer f.Close()
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "hello, world", string(body))

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(12), info.Size())
}

func TestMemoryFileSystem_CreateVisibleOnClose(t *testing.T) {
	mfs := NewMemoryFileSystem()

	w, err := mfs.Create("/out/report.tsv")
	require.NoError(t, err)
	_, err = w.Write([]byte("locus\tp\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := mfs.ReadFile("/out/report.tsv")
	require.NoError(t, err)
	assert.Equal(t, "locus\tp\n", string(data))
}

func TestMemoryFileSystem_Rename(t *testing.T) {
	mfs := NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/a", []byte("1"), 0644))
	require.NoError(t, mfs.Rename("/a", "/b"))

	assert.False(t, mfs.Exists("/a"))
	assert.True(t, mfs.Exists("/b"))

	err := mfs.Rename("/missing", "/c")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestMemoryFileSystem_Dirs(t *testing.T) {
	mfs := NewMemoryFileSystem()
	require.NoError(t, mfs.MkdirAll("/cache/datasets", 0755))

	assert.True(t, mfs.Exists("/cache"))
	info, err := mfs.Stat("/cache/datasets")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, mfs.WriteFile("/cache/datasets/a.csv", nil, 0644))
	assert.Error(t, mfs.Remove("/cache/datasets"), "non-empty directory must not be removed")

	_, err = mfs.Stat("/nope")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}
