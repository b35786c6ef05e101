package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/soundrift/drivecache/internal/catalog"
	"github.com/soundrift/drivecache/internal/engine/progress"
	"github.com/soundrift/drivecache/internal/logctx"
	"github.com/soundrift/drivecache/internal/tasks"
	"github.com/soundrift/drivecache/internal/telemetry"
)

const dirPerm = 0755

// Request describes one remote file to fetch. The URL must already be
// fetchable; refreshing expired URLs is the caller's job.
type Request struct {
	ID       string
	Name     string
	URL      string
	MimeType string
	Source   catalog.Source
}

// Engine transfers exactly one remote file to local storage per call,
// reporting progress through the task registry and finalizing the manifest
// only on confirmed success.
type Engine struct {
	store        catalog.Store
	registry     *tasks.Registry
	cacheDir     string
	client       *http.Client
	telemetry    *telemetry.Telemetry
	completedTTL time.Duration
	failedTTL    time.Duration
}

func New(
	store catalog.Store,
	registry *tasks.Registry,
	cacheDir string,
	completedTTL time.Duration,
	failedTTL time.Duration,
	tel *telemetry.Telemetry,
) *Engine {
	return &Engine{
		store:        store,
		registry:     registry,
		cacheDir:     cacheDir,
		client:       &http.Client{},
		telemetry:    tel,
		completedTTL: completedTTL,
		failedTTL:    failedTTL,
	}
}

// Download fetches req.URL into the cache directory and returns the local
// path. The engine does not skip already-cached files; that policy belongs
// to the caller. Failures are classified and never leave a manifest entry.
func (e *Engine) Download(ctx context.Context, req Request, onProgress func(percent int)) (string, error) {
	logger := logctx.LoggerFromContext(ctx).With("file_id", req.ID, "file_name", req.Name)

	start := time.Now()

	e.registry.Track(req.ID, req.Name)
	e.telemetry.IncrementActiveDownloads()

	defer e.telemetry.DecrementActiveDownloads()

	targetPath, err := e.transfer(ctx, req, onProgress)
	if err != nil {
		dlErr := &DownloadError{
			Kind:   classify(err),
			FileID: req.ID,
			Reason: err.Error(),
			Err:    err,
		}

		logger.Error("failed to download file", "kind", string(dlErr.Kind), "err", err)

		e.registry.Fail(req.ID, dlErr.Reason)
		e.expireTask(req.ID, e.failedTTL)
		e.telemetry.RecordDownload("error", time.Since(start))

		return "", dlErr
	}

	e.registry.SetProgress(req.ID, 100)
	e.registry.SetStatus(req.ID, tasks.StatusCompleted)
	e.expireTask(req.ID, e.completedTTL)
	e.telemetry.RecordDownload("success", time.Since(start))

	return targetPath, nil
}

func (e *Engine) transfer(ctx context.Context, req Request, onProgress func(percent int)) (string, error) {
	logger := logctx.LoggerFromContext(ctx).With("file_id", req.ID)

	if err := os.MkdirAll(e.cacheDir, dirPerm); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	targetPath := catalog.LocalPath(e.cacheDir, req.ID, req.Name)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid download url: %w", err)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to fetch file: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", &StatusError{URL: req.URL, StatusCode: resp.StatusCode}
	}

	e.registry.SetStatus(req.ID, tasks.StatusDownloading)

	logger.Info("downloading file", "target", targetPath, "file_size", humanize.Bytes(uint64(max(resp.ContentLength, 0))))

	written, err := e.writeFile(ctx, resp.Body, resp.ContentLength, targetPath, req.ID, onProgress)
	if err != nil {
		// Best effort: a partial file on disk must not look downloaded.
		os.Remove(targetPath)

		return "", err
	}

	record := catalog.File{
		ID:           req.ID,
		Name:         req.Name,
		LocalPath:    targetPath,
		MimeType:     req.MimeType,
		Source:       req.Source,
		DownloadedAt: time.Now().UnixMilli(),
		FileSize:     written,
	}

	// Persistence failure is a warning, not a download failure: the file is
	// on disk and usable for the rest of the session.
	if err := e.store.Upsert(ctx, record); err != nil {
		logger.Warn("failed to persist manifest entry", "err", err)
	}

	logger.Info("downloaded and saved file", "target", targetPath, "file_size", humanize.Bytes(uint64(written)))

	return targetPath, nil
}

func (e *Engine) writeFile(ctx context.Context, body io.Reader, totalBytes int64, targetPath, fileID string, onProgress func(percent int)) (int64, error) {
	out, err := os.Create(targetPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create target file: %w", err)
	}

	defer out.Close()

	pr := progress.NewReader(body, totalBytes, func(percent int) {
		e.registry.SetProgress(fileID, percent)

		if onProgress != nil {
			onProgress(percent)
		}
	})

	written, err := io.Copy(out, pr)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, fmt.Errorf("transfer interrupted: %w", ctxErr)
		}

		return 0, fmt.Errorf("failed to copy file: %w", err)
	}

	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("failed to flush target file: %w", err)
	}

	return written, nil
}

// Abort marks the task failed without attempting a transfer. The task is
// removed after the same delay as any other failed download.
func (e *Engine) Abort(fileID, reason string) {
	e.registry.Fail(fileID, reason)
	e.expireTask(fileID, e.failedTTL)
}

// expireTask drops a terminal task from the registry after the given delay,
// keeping it visible just long enough for UI feedback.
func (e *Engine) expireTask(fileID string, after time.Duration) {
	time.AfterFunc(after, func() {
		e.registry.Remove(fileID)
	})
}
