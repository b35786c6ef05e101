package catalog

import (
	"context"
	"path/filepath"
	"regexp"
)

// Source identifies which remote drive a cached file came from.
type Source string

const (
	SourceGoogleDrive Source = "googledrive"
	SourceOneDrive    Source = "onedrive"
)

// Valid reports whether s is one of the known drive sources.
func (s Source) Valid() bool {
	return s == SourceGoogleDrive || s == SourceOneDrive
}

// File is one durable manifest entry for a file that finished downloading.
type File struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	LocalPath    string `json:"localPath"`
	MimeType     string `json:"mimeType,omitempty"`
	Source       Source `json:"source"`
	DownloadedAt int64  `json:"downloadedAt"`
	FileSize     int64  `json:"fileSize,omitempty"`
}

// Store is the authoritative persisted mapping from file ID to its manifest entry.
//
// Load returns the empty set when no manifest exists or it cannot be parsed;
// a broken manifest is routine drift, not a failure. Save replaces the full
// set, last writer wins. Writers for the same file ID must not overlap.
type Store interface {
	Load(ctx context.Context) ([]File, error)
	Save(ctx context.Context, files []File) error
	Upsert(ctx context.Context, file File) error
	Remove(ctx context.Context, id string) (bool, error)
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeName replaces every character outside [a-zA-Z0-9._-] with an underscore.
func SanitizeName(name string) string {
	return unsafeChars.ReplaceAllString(name, "_")
}

// LocalPath derives the deterministic on-disk path for a cached file, so
// re-downloading the same ID always lands on the same path.
func LocalPath(dir, id, name string) string {
	return filepath.Join(dir, SanitizeName(id)+"_"+SanitizeName(name))
}

// ReplaceByID returns files with file replacing any existing entry carrying
// the same ID, appending it otherwise.
func ReplaceByID(files []File, file File) []File {
	out := make([]File, 0, len(files)+1)

	for _, f := range files {
		if f.ID != file.ID {
			out = append(out, f)
		}
	}

	return append(out, file)
}

// RemoveByID returns files without the entry for id and whether one was removed.
func RemoveByID(files []File, id string) ([]File, bool) {
	out := make([]File, 0, len(files))

	for _, f := range files {
		if f.ID != id {
			out = append(out, f)
		}
	}

	return out, len(out) != len(files)
}

// FindByID returns the entry for id, if present.
func FindByID(files []File, id string) (File, bool) {
	for _, f := range files {
		if f.ID == id {
			return f, true
		}
	}

	return File{}, false
}
