package offline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/soundrift/drivecache/internal/catalog"
	"github.com/soundrift/drivecache/internal/catalog/jsonfile"
	"github.com/soundrift/drivecache/internal/engine"
	"github.com/soundrift/drivecache/internal/reconcile"
	"github.com/soundrift/drivecache/internal/scheduler"
	"github.com/soundrift/drivecache/internal/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) (*Manager, catalog.Store) {
	t.Helper()

	dir := t.TempDir()
	store := jsonfile.NewStore(filepath.Join(dir, "manifest.json"))
	registry := tasks.NewRegistry()
	rec := reconcile.New(store, nil)
	eng := engine.New(store, registry, filepath.Join(dir, "music"), time.Minute, time.Minute, nil)
	sched := scheduler.New(store, eng, registry, 5, nil)

	return NewManager(store, rec, eng, sched, registry), store
}

func fileServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	t.Cleanup(server.Close)

	return server
}

func TestDownloadThenDelete(t *testing.T) {
	server := fileServer(t)
	m, store := newManager(t)
	ctx := context.Background()

	localPath, err := m.Download(ctx, engine.Request{
		ID:     "f1",
		Name:   "song.mp3",
		URL:    server.URL,
		Source: catalog.SourceGoogleDrive,
	}, nil)
	require.NoError(t, err)

	assert.True(t, m.IsDownloaded(ctx, "f1"))

	got, ok := m.LocalPath(ctx, "f1")
	require.True(t, ok)
	assert.Equal(t, localPath, got)

	deleted, err := m.Delete(ctx, "f1")
	require.NoError(t, err)
	assert.True(t, deleted)

	// Both the backing file and the manifest entry are gone.
	_, statErr := os.Stat(localPath)
	assert.True(t, os.IsNotExist(statErr))

	files, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)

	_, ok = m.LocalPath(ctx, "f1")
	assert.False(t, ok)
}

func TestDeleteNotCached(t *testing.T) {
	m, _ := newManager(t)

	deleted, err := m.Delete(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestFilesReconcilesExternalDeletion(t *testing.T) {
	server := fileServer(t)
	m, _ := newManager(t)
	ctx := context.Background()

	localPath, err := m.Download(ctx, engine.Request{
		ID:     "f1",
		Name:   "song.mp3",
		URL:    server.URL,
		Source: catalog.SourceOneDrive,
	}, nil)
	require.NoError(t, err)

	files, err := m.Files(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)

	// Storage cleared behind the app's back.
	require.NoError(t, os.Remove(localPath))

	assert.False(t, m.IsDownloaded(ctx, "f1"))

	files, err = m.Files(ctx)
	require.NoError(t, err)
	assert.Empty(t, files, "stale entry should disappear from the listing")
}

func TestRedownloadReplacesRecord(t *testing.T) {
	server := fileServer(t)
	m, store := newManager(t)
	ctx := context.Background()

	_, err := m.Download(ctx, engine.Request{ID: "f1", Name: "one.mp3", URL: server.URL, Source: catalog.SourceGoogleDrive}, nil)
	require.NoError(t, err)

	_, err = m.Download(ctx, engine.Request{ID: "f1", Name: "two.mp3", URL: server.URL, Source: catalog.SourceGoogleDrive}, nil)
	require.NoError(t, err)

	files, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "two.mp3", files[0].Name, "latest download wins")
}

func TestDownloadAllAndTaskSurface(t *testing.T) {
	server := fileServer(t)
	m, _ := newManager(t)
	ctx := context.Background()

	result := m.DownloadAll(ctx, []engine.Request{
		{ID: "f1", Name: "one.mp3", URL: server.URL, Source: catalog.SourceGoogleDrive},
		{ID: "f2", Name: "two.mp3", URL: server.URL, Source: catalog.SourceGoogleDrive},
	}, 2)

	assert.Equal(t, scheduler.Result{Succeeded: 2, Failed: 0, Total: 2}, result)
	assert.Equal(t, 0, m.ActiveDownloadCount())
	assert.Len(t, m.Tasks(), 2, "terminal tasks linger until the cleanup delay")
}
