package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *UploadStore {
	t.Helper()
	store, err := NewUploadStore(t.TempDir(), 24*time.Hour)
	require.NoError(t, err)
	return store
}

func TestUploadStore_SaveUsesUniqueNames(t *testing.T) {
	store := newTestStore(t)

	p1, err := store.Save("ring.png", []byte("first"))
	require.NoError(t, err)
	p2, err := store.Save("ring.png", []byte("second"))
	require.NoError(t, err)

	assert.NotEqual(t, p1, p2)
	assert.Equal(t, ".png", filepath.Ext(p1))

	data, err := os.ReadFile(p1)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestUploadStore_SaveDefaultsExtension(t *testing.T) {
	store := newTestStore(t)

	path, err := store.Save("noextension", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, ".jpg", filepath.Ext(path))
}

func TestUploadStore_RemoveToleratesMissing(t *testing.T) {
	store := newTestStore(t)

	path, err := store.Save("a.jpg", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, store.Remove(path))
	require.NoError(t, store.Remove(path)) // already gone

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestUploadStore_RemoveRejectsOutsidePaths(t *testing.T) {
	dir := t.TempDir()
	uploadDir := filepath.Join(dir, "uploads")
	store, err := NewUploadStore(uploadDir, 24*time.Hour)
	require.NoError(t, err)

	require.Error(t, store.Remove("/etc/passwd"))

	// a sibling directory sharing the dir name as a string prefix is
	// still outside the store
	sibling := filepath.Join(dir, "uploads-evil")
	require.NoError(t, os.MkdirAll(sibling, 0o755))
	victim := filepath.Join(sibling, "x.jpg")
	require.NoError(t, os.WriteFile(victim, []byte("x"), 0o644))

	require.Error(t, store.Remove(victim))
	_, statErr := os.Stat(victim)
	assert.NoError(t, statErr, "file outside the store must survive")

	// traversal back out of the dir is rejected too
	require.Error(t, store.Remove(filepath.Join(uploadDir, "..", "uploads-evil", "x.jpg")))
}

func TestUploadStore_PruneRemovesOnlyExpired(t *testing.T) {
	store := newTestStore(t)

	oldPath, err := store.Save("old.jpg", []byte("old"))
	require.NoError(t, err)
	freshPath, err := store.Save("fresh.jpg", []byte("fresh"))
	require.NoError(t, err)

	// Keep the failure screenshot regardless of age
	shot := store.ScreenshotPath()
	require.NoError(t, os.WriteFile(shot, []byte("png"), 0o644))

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, past, past))
	require.NoError(t, os.Chtimes(shot, past, past))

	removed, err := store.Prune()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(freshPath)
	assert.NoError(t, err)
	_, err = os.Stat(shot)
	assert.NoError(t, err)
}

func TestUploadStore_ScreenshotPathIsStable(t *testing.T) {
	store := newTestStore(t)
	assert.Equal(t, store.ScreenshotPath(), store.ScreenshotPath())
	assert.Equal(t, "bot-upload-fail.png", filepath.Base(store.ScreenshotPath()))
}
