package tasks

import "sync"

// Status is the lifecycle state of one download operation.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is the live progress record for one download, keyed by file ID.
// Tasks are never persisted; they exist for progress UI only.
type Task struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	Progress int    `json:"progress"`
	Status   Status `json:"status"`
	Error    string `json:"error,omitempty"`
}

// Registry is a passive, concurrency-safe map of in-flight and
// recently-finished download tasks. Expiry of terminal tasks is the
// caller's job, not the registry's.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]Task)}
}

// Track creates the task for fileID as pending, or resets an existing
// one back to pending with zero progress.
func (r *Registry) Track(fileID, fileName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tasks[fileID] = Task{
		FileID:   fileID,
		FileName: fileName,
		Status:   StatusPending,
	}
}

// SetStatus merges a status change into the task, creating it if needed.
func (r *Registry) SetStatus(fileID string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.getOrCreate(fileID)
	t.Status = status

	if status == StatusCompleted {
		t.Progress = 100
	}

	r.tasks[fileID] = t
}

// SetProgress merges a progress update into the task, creating it if needed.
func (r *Registry) SetProgress(fileID string, percent int) {
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.getOrCreate(fileID)
	t.Progress = percent

	r.tasks[fileID] = t
}

// Fail marks the task failed with a human-readable description.
func (r *Registry) Fail(fileID, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.getOrCreate(fileID)
	t.Status = StatusFailed
	t.Error = message

	r.tasks[fileID] = t
}

// Remove drops the task for fileID.
func (r *Registry) Remove(fileID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tasks, fileID)
}

// Get returns the task for fileID, if tracked.
func (r *Registry) Get(fileID string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[fileID]

	return t, ok
}

// Snapshot returns a copy of all current tasks.
func (r *Registry) Snapshot() []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}

	return out
}

// ActiveCount returns how many tasks are currently downloading.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0

	for _, t := range r.tasks {
		if t.Status == StatusDownloading {
			count++
		}
	}

	return count
}

func (r *Registry) getOrCreate(fileID string) Task {
	if t, ok := r.tasks[fileID]; ok {
		return t
	}

	return Task{FileID: fileID, Status: StatusPending}
}
