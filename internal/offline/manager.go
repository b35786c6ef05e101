// Package offline exposes the cache manager surface consumed by the UI:
// listing reconciled downloads, starting single and batch downloads,
// deleting cached files and reading live task progress.
package offline

import (
	"context"
	"fmt"
	"os"

	"github.com/soundrift/drivecache/internal/catalog"
	"github.com/soundrift/drivecache/internal/engine"
	"github.com/soundrift/drivecache/internal/logctx"
	"github.com/soundrift/drivecache/internal/reconcile"
	"github.com/soundrift/drivecache/internal/scheduler"
	"github.com/soundrift/drivecache/internal/tasks"
)

// Manager ties the manifest store, reconciler, download engine, batch
// scheduler and task registry together. One instance is built at startup
// and passed by reference; there is no package-level state.
type Manager struct {
	store      catalog.Store
	reconciler *reconcile.Reconciler
	engine     *engine.Engine
	scheduler  *scheduler.Scheduler
	registry   *tasks.Registry
}

func NewManager(
	store catalog.Store,
	rec *reconcile.Reconciler,
	eng *engine.Engine,
	sched *scheduler.Scheduler,
	registry *tasks.Registry,
) *Manager {
	return &Manager{
		store:      store,
		reconciler: rec,
		engine:     eng,
		scheduler:  sched,
		registry:   registry,
	}
}

// Files returns the reconciled list of cached files. Entries whose backing
// file disappeared are pruned before the list is returned.
func (m *Manager) Files(ctx context.Context) ([]catalog.File, error) {
	return m.reconciler.VerifyAll(ctx)
}

// IsDownloaded reports whether id is cached and its backing file exists.
func (m *Manager) IsDownloaded(ctx context.Context, id string) bool {
	return m.reconciler.VerifyOne(ctx, id)
}

// Download fetches a single file and returns its local path. Unlike batch
// downloads it does not skip already-cached IDs; re-downloading the same ID
// replaces its manifest entry on the same deterministic path.
func (m *Manager) Download(ctx context.Context, req engine.Request, onProgress func(percent int)) (string, error) {
	return m.engine.Download(ctx, req, onProgress)
}

// DownloadAll runs a batch with bounded parallelism and waits for every
// attempt to resolve.
func (m *Manager) DownloadAll(ctx context.Context, requests []engine.Request, maxConcurrent int) scheduler.Result {
	return m.scheduler.DownloadAll(ctx, requests, maxConcurrent)
}

// Delete removes both the cached file and its manifest entry. It reports
// false when nothing was cached under id.
func (m *Manager) Delete(ctx context.Context, id string) (bool, error) {
	logger := logctx.LoggerFromContext(ctx)

	files, err := m.store.Load(ctx)
	if err != nil {
		return false, err
	}

	f, ok := catalog.FindByID(files, id)
	if !ok {
		return false, nil
	}

	if err := os.Remove(f.LocalPath); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to remove cached file: %w", err)
	}

	if _, err := m.store.Remove(ctx, id); err != nil {
		return false, fmt.Errorf("failed to remove manifest entry: %w", err)
	}

	logger.Info("deleted cached file", "file_id", id, "local_path", f.LocalPath)

	return true, nil
}

// LocalPath returns the on-disk path for id when the file is cached and
// still present.
func (m *Manager) LocalPath(ctx context.Context, id string) (string, bool) {
	files, err := m.store.Load(ctx)
	if err != nil {
		return "", false
	}

	f, ok := catalog.FindByID(files, id)
	if !ok {
		return "", false
	}

	if _, err := os.Stat(f.LocalPath); err != nil {
		return "", false
	}

	return f.LocalPath, true
}

// Tasks returns a snapshot of the live download tasks for progress UI.
func (m *Manager) Tasks() []tasks.Task {
	return m.registry.Snapshot()
}

// ActiveDownloadCount returns how many downloads are currently transferring.
func (m *Manager) ActiveDownloadCount() int {
	return m.registry.ActiveCount()
}
