// Package provider defines the canonical shape of remote drive entries.
// Each drive speaks its own record format; clients normalize to RemoteFile
// before anything reaches the cache core, so the core never branches on
// provider-specific fields.
package provider

import (
	"context"

	"github.com/soundrift/drivecache/internal/catalog"
)

// RemoteFile is the normalized view of one remote drive entry.
type RemoteFile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitempty"`
	IsFolder bool   `json:"isFolder"`
}

// Drive is the boundary the cache core consumes from a remote provider:
// folder listing and time-limited download URL resolution. Token refresh
// happens outside this interface.
type Drive interface {
	List(ctx context.Context, parentID string) ([]RemoteFile, error)
	DownloadURL(ctx context.Context, id string) (string, error)
	Source() catalog.Source
}
