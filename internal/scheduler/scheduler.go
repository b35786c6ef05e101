package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/soundrift/drivecache/internal/catalog"
	"github.com/soundrift/drivecache/internal/engine"
	"github.com/soundrift/drivecache/internal/logctx"
	"github.com/soundrift/drivecache/internal/tasks"
	"github.com/soundrift/drivecache/internal/telemetry"
	"golang.org/x/sync/semaphore"
)

// Result aggregates the outcome of one batch. Total counts the requests
// actually attempted after the cached pre-filter, and Succeeded+Failed
// always equals Total once DownloadAll returns.
type Result struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// Scheduler runs batches of downloads with bounded parallelism, skipping
// files the manifest already knows about.
//
// Every batch honors its own per-call concurrency limit, and all batches
// additionally share one process-wide admission budget, so two batches in
// flight at once cannot oversubscribe the transport.
type Scheduler struct {
	store     catalog.Store
	engine    *engine.Engine
	registry  *tasks.Registry
	admit     *semaphore.Weighted
	telemetry *telemetry.Telemetry
}

func New(
	store catalog.Store,
	eng *engine.Engine,
	registry *tasks.Registry,
	globalLimit int64,
	tel *telemetry.Telemetry,
) *Scheduler {
	if globalLimit < 1 {
		globalLimit = 1
	}

	return &Scheduler{
		store:     store,
		engine:    eng,
		registry:  registry,
		admit:     semaphore.NewWeighted(globalLimit),
		telemetry: tel,
	}
}

// DownloadAll downloads every request not already cached, running at most
// maxConcurrent transfers at a time, and returns once all attempts have
// resolved. One file failing never stops the rest of the batch.
func (s *Scheduler) DownloadAll(ctx context.Context, requests []engine.Request, maxConcurrent int) Result {
	logger := logctx.LoggerFromContext(ctx)

	queue := s.filterCached(ctx, requests)

	logger.Info("starting batch download", "requested", len(requests), "attempting", len(queue))

	// Register the whole queue up front so the UI sees it immediately.
	for _, req := range queue {
		s.registry.Track(req.ID, req.Name)
	}

	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	var succeeded, failed int32

	var wg sync.WaitGroup

	sem := make(chan struct{}, maxConcurrent)

	for i := range queue {
		req := queue[i]
		sem <- struct{}{}

		wg.Add(1)

		go func() {
			defer wg.Done()
			defer func() { <-sem }() // release the slot

			if err := s.admit.Acquire(ctx, 1); err != nil {
				s.engine.Abort(req.ID, "download cancelled")
				atomic.AddInt32(&failed, 1)

				return
			}
			defer s.admit.Release(1)

			if _, err := s.engine.Download(ctx, req, nil); err != nil {
				atomic.AddInt32(&failed, 1)

				return
			}

			atomic.AddInt32(&succeeded, 1)
		}()
	}

	wg.Wait()

	result := Result{
		Succeeded: int(succeeded),
		Failed:    int(failed),
		Total:     len(queue),
	}

	logger.Info("batch download finished",
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"total", result.Total,
	)

	s.telemetry.RecordBatch(result.Succeeded, result.Failed)

	return result
}

// filterCached drops requests whose ID already has a manifest entry, plus
// duplicate IDs within the batch itself, preserving FIFO order.
func (s *Scheduler) filterCached(ctx context.Context, requests []engine.Request) []engine.Request {
	files, err := s.store.Load(ctx)
	if err != nil {
		logctx.LoggerFromContext(ctx).Warn("failed to load manifest for batch pre-filter", "err", err)
	}

	cached := make(map[string]struct{}, len(files))
	for _, f := range files {
		cached[f.ID] = struct{}{}
	}

	queue := make([]engine.Request, 0, len(requests))

	for _, req := range requests {
		if _, ok := cached[req.ID]; ok {
			continue
		}

		cached[req.ID] = struct{}{}

		queue = append(queue, req)
	}

	return queue
}
