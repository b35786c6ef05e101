package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"syscall"
)

// Kind classifies why a download failed.
type Kind string

const (
	KindNetwork   Kind = "network"
	KindStorage   Kind = "storage"
	KindCancelled Kind = "cancelled"
	KindUnknown   Kind = "unknown"
)

// DownloadError carries the failure classification for a single file download.
// The manifest is never touched when one of these is returned.
type DownloadError struct {
	Kind   Kind   // failure taxonomy bucket
	FileID string // remote file identifier
	Reason string // human-readable description, shown on the failed task
	Err    error  // underlying error, if any
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download of %s failed (%s): %s", e.FileID, e.Kind, e.Reason)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// StatusError represents a non-success HTTP response for a download URL.
// Expired or revoked URLs surface here; the engine never refreshes them.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.StatusCode, e.URL)
}

// classify maps an underlying error onto the failure taxonomy.
func classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case isStorage(err):
		return KindStorage
	case isNetwork(err):
		return KindNetwork
	default:
		return KindUnknown
	}
}

func isNetwork(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr)
}

func isStorage(err error) bool {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return true
	}

	return errors.Is(err, syscall.ENOSPC)
}
