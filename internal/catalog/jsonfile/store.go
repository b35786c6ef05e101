package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/soundrift/drivecache/internal/catalog"
	"github.com/soundrift/drivecache/internal/logctx"
)

const filePerm = 0644

// Store persists the manifest as a single JSON document on disk. It is the
// direct equivalent of keeping the whole collection under one storage key.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the manifest. A missing or unparsable manifest loads as empty.
func (s *Store) Load(ctx context.Context) ([]catalog.File, error) {
	logger := logctx.LoggerFromContext(ctx)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to read manifest, treating as empty", "path", s.path, "err", err)
		}

		return nil, nil
	}

	var files []catalog.File
	if err := json.Unmarshal(data, &files); err != nil {
		logger.Warn("corrupt manifest, treating as empty", "path", s.path, "err", err)

		return nil, nil
	}

	return files, nil
}

// Save writes the full replacement set. The document is written to a temp
// file first and renamed into place so readers never see a torn manifest.
func (s *Store) Save(ctx context.Context, files []catalog.File) error {
	if files == nil {
		files = []catalog.File{}
	}

	data, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	dir := filepath.Dir(s.path)

	tmp, err := os.CreateTemp(dir, ".manifest-*")
	if err != nil {
		return fmt.Errorf("failed to create temp manifest: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to write manifest: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to close temp manifest: %w", err)
	}

	if err := os.Chmod(tmp.Name(), filePerm); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to chmod manifest: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to replace manifest: %w", err)
	}

	return nil
}

// Upsert replaces or appends the entry for file.ID and persists the set.
func (s *Store) Upsert(ctx context.Context, file catalog.File) error {
	files, err := s.Load(ctx)
	if err != nil {
		return err
	}

	return s.Save(ctx, catalog.ReplaceByID(files, file))
}

// Remove drops the entry for id. It reports whether an entry was present.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	files, err := s.Load(ctx)
	if err != nil {
		return false, err
	}

	remaining, removed := catalog.RemoveByID(files, id)
	if !removed {
		return false, nil
	}

	return true, s.Save(ctx, remaining)
}
