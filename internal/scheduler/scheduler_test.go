package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soundrift/drivecache/internal/catalog"
	"github.com/soundrift/drivecache/internal/catalog/jsonfile"
	"github.com/soundrift/drivecache/internal/engine"
	"github.com/soundrift/drivecache/internal/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// concurrencyTracker records the peak number of simultaneous requests.
type concurrencyTracker struct {
	mu      sync.Mutex
	current int
	peak    int
}

func (c *concurrencyTracker) enter() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current++
	if c.current > c.peak {
		c.peak = c.current
	}
}

func (c *concurrencyTracker) exit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current--
}

func (c *concurrencyTracker) max() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.peak
}

func newScheduler(t *testing.T, globalLimit int64) (*Scheduler, catalog.Store, *tasks.Registry) {
	t.Helper()

	dir := t.TempDir()
	store := jsonfile.NewStore(filepath.Join(dir, "manifest.json"))
	registry := tasks.NewRegistry()
	eng := engine.New(store, registry, filepath.Join(dir, "music"), time.Minute, time.Minute, nil)

	return New(store, eng, registry, globalLimit, nil), store, registry
}

func requests(serverURL string, ids ...string) []engine.Request {
	reqs := make([]engine.Request, 0, len(ids))
	for _, id := range ids {
		reqs = append(reqs, engine.Request{
			ID:     id,
			Name:   id + ".mp3",
			URL:    serverURL + "/" + id,
			Source: catalog.SourceGoogleDrive,
		})
	}

	return reqs
}

func TestDownloadAll_AllSucceed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "payload")
	}))
	defer server.Close()

	s, store, _ := newScheduler(t, 10)

	result := s.DownloadAll(context.Background(), requests(server.URL, "f1", "f2", "f3"), 2)

	assert.Equal(t, Result{Succeeded: 3, Failed: 0, Total: 3}, result)

	files, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, files, 3)
}

func TestDownloadAll_SkipsCachedFiles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "payload")
	}))
	defer server.Close()

	s, store, _ := newScheduler(t, 10)
	ctx := context.Background()

	// Two of five are already cached.
	require.NoError(t, store.Save(ctx, []catalog.File{
		{ID: "f1", Name: "f1.mp3", LocalPath: "/anywhere"},
		{ID: "f4", Name: "f4.mp3", LocalPath: "/anywhere"},
	}))

	result := s.DownloadAll(ctx, requests(server.URL, "f1", "f2", "f3", "f4", "f5"), 3)

	assert.Equal(t, Result{Succeeded: 3, Failed: 0, Total: 3}, result)
}

func TestDownloadAll_PartialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "bad") {
			http.Error(w, "boom", http.StatusInternalServerError)

			return
		}

		fmt.Fprint(w, "payload")
	}))
	defer server.Close()

	s, store, _ := newScheduler(t, 10)

	result := s.DownloadAll(context.Background(), requests(server.URL, "f1", "f2bad", "f3", "f4bad"), 2)

	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 4, result.Total)
	assert.Equal(t, result.Total, result.Succeeded+result.Failed)

	// Failures never make it into the manifest.
	files, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestDownloadAll_BoundedConcurrency(t *testing.T) {
	tracker := &concurrencyTracker{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracker.enter()
		defer tracker.exit()

		time.Sleep(30 * time.Millisecond)
		fmt.Fprint(w, "payload")
	}))
	defer server.Close()

	s, _, _ := newScheduler(t, 10)

	result := s.DownloadAll(context.Background(), requests(server.URL, "f1", "f2", "f3", "f4", "f5", "f6"), 2)

	assert.Equal(t, 6, result.Succeeded)
	assert.LessOrEqual(t, tracker.max(), 2, "no more than maxConcurrent transfers at once")
}

func TestDownloadAll_GlobalAdmissionSharedAcrossBatches(t *testing.T) {
	tracker := &concurrencyTracker{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracker.enter()
		defer tracker.exit()

		time.Sleep(30 * time.Millisecond)
		fmt.Fprint(w, "payload")
	}))
	defer server.Close()

	s, _, _ := newScheduler(t, 3)

	var wg sync.WaitGroup

	for _, batch := range [][]engine.Request{
		requests(server.URL, "a1", "a2", "a3", "a4"),
		requests(server.URL, "b1", "b2", "b3", "b4"),
	} {
		wg.Add(1)

		go func(reqs []engine.Request) {
			defer wg.Done()

			result := s.DownloadAll(context.Background(), reqs, 4)
			assert.Equal(t, 4, result.Succeeded)
		}(batch)
	}

	wg.Wait()

	assert.LessOrEqual(t, tracker.max(), 3, "concurrent batches must share the global budget")
}

func TestDownloadAll_DeduplicatesWithinBatch(t *testing.T) {
	var mu sync.Mutex

	hits := make(map[string]int)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()

		fmt.Fprint(w, "payload")
	}))
	defer server.Close()

	s, _, _ := newScheduler(t, 10)

	reqs := append(requests(server.URL, "f1", "f2"), requests(server.URL, "f1")...)
	result := s.DownloadAll(context.Background(), reqs, 2)

	assert.Equal(t, Result{Succeeded: 2, Failed: 0, Total: 2}, result)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, hits["/f1"], "same id must not download twice in one batch")
}

func TestDownloadAll_RegistersQueueUpFront(t *testing.T) {
	release := make(chan struct{})

	var once sync.Once

	s, _, registry := newScheduler(t, 10)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			// While the first transfer is held, the whole queue is visible.
			snapshot := registry.Snapshot()
			assert.Len(t, snapshot, 3)
			close(release)
		})

		<-release
		fmt.Fprint(w, "payload")
	}))
	defer server.Close()

	result := s.DownloadAll(context.Background(), requests(server.URL, "f1", "f2", "f3"), 1)
	assert.Equal(t, 3, result.Succeeded)
}

func TestDownloadAll_EmptyBatch(t *testing.T) {
	s, _, _ := newScheduler(t, 10)

	result := s.DownloadAll(context.Background(), nil, 3)
	assert.Equal(t, Result{}, result)
}

func TestDownloadAll_CancelledBatchExpiresFailedTasks(t *testing.T) {
	dir := t.TempDir()
	store := jsonfile.NewStore(filepath.Join(dir, "manifest.json"))
	registry := tasks.NewRegistry()
	eng := engine.New(store, registry, filepath.Join(dir, "music"), time.Minute, 30*time.Millisecond, nil)
	s := New(store, eng, registry, 2, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := s.DownloadAll(ctx, requests("http://127.0.0.1:0", "f1", "f2"), 2)

	assert.Equal(t, Result{Succeeded: 0, Failed: 2, Total: 2}, result)

	// Tasks from the aborted batch are removed like any other failure.
	require.Eventually(t, func() bool {
		return len(registry.Snapshot()) == 0
	}, time.Second, 5*time.Millisecond, "cancelled tasks must not linger in the registry")
}
