package fsutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/quorum-project/quorum/pkg/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWrite_CreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")
	data := []byte(`{"key": "value"}`)

	err := fsutil.AtomicWrite(path, data, 0644)
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, content)
}

func TestAtomicWrite_OverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")
	os.WriteFile(path, []byte("old"), 0644)

	err := fsutil.AtomicWrite(path, []byte("new"), 0644)
	require.NoError(t, err)

	content, _ := os.ReadFile(path)
	assert.Equal(t, "new", string(content))
}

func TestAtomicWrite_NoTmpLeftOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")
	fsutil.AtomicWrite(path, []byte("data"), 0644)

	entries, _ := os.ReadDir(dir)
	assert.Len(t, entries, 1, "only the target file should exist")
}

func TestAtomicWrite_AppliesPermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "marker.json")

	require.NoError(t, fsutil.AtomicWrite(path, []byte("{}"), 0600))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestAtomicWrite_FailsOnMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no-such-dir", "f.json")
	assert.Error(t, fsutil.AtomicWrite(path, []byte("x"), 0644))
}

func TestFsyncDir(t *testing.T) {
	dir := t.TempDir()
	err := fsutil.FsyncDir(dir)
	assert.NoError(t, err)
}
