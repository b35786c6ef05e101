package reconcile

import (
	"context"
	"os"

	"github.com/soundrift/drivecache/internal/catalog"
	"github.com/soundrift/drivecache/internal/logctx"
	"github.com/soundrift/drivecache/internal/telemetry"
)

// Reconciler keeps the manifest honest against actual storage state.
// Cached files can disappear underneath the app (storage cleared, files
// evicted), so manifest entries are only trusted after their backing file
// has been confirmed on disk.
type Reconciler struct {
	store     catalog.Store
	telemetry *telemetry.Telemetry
}

func New(store catalog.Store, tel *telemetry.Telemetry) *Reconciler {
	return &Reconciler{store: store, telemetry: tel}
}

// VerifyAll returns the manifest entries whose backing files still exist.
// When entries have gone stale the reduced set is persisted back; missing
// files are routine drift and never surface as an error.
func (r *Reconciler) VerifyAll(ctx context.Context) ([]catalog.File, error) {
	logger := logctx.LoggerFromContext(ctx)

	files, err := r.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	valid := make([]catalog.File, 0, len(files))

	for _, f := range files {
		if fileExists(f.LocalPath) {
			valid = append(valid, f)

			continue
		}

		logger.Debug("pruning stale manifest entry", "file_id", f.ID, "local_path", f.LocalPath)
	}

	if len(valid) != len(files) {
		logger.Info("reconciled manifest", "kept", len(valid), "pruned", len(files)-len(valid))
		r.telemetry.RecordManifestPrune(len(files) - len(valid))

		if err := r.store.Save(ctx, valid); err != nil {
			logger.Warn("failed to persist reconciled manifest", "err", err)
		}
	}

	return valid, nil
}

// VerifyOne reports whether id has a manifest entry whose backing file
// exists, without rewriting the manifest.
func (r *Reconciler) VerifyOne(ctx context.Context, id string) bool {
	files, err := r.store.Load(ctx)
	if err != nil {
		return false
	}

	f, ok := catalog.FindByID(files, id)
	if !ok {
		return false
	}

	return fileExists(f.LocalPath)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)

	return err == nil && !info.IsDir()
}
