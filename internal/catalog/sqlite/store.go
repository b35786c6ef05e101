package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/soundrift/drivecache/internal/catalog"
	"github.com/soundrift/drivecache/internal/logctx"
)

// InitDB opens the SQLite database and creates the cached_files table if it doesn't exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS cached_files (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		local_path TEXT NOT NULL,
		mime_type TEXT,
		source TEXT NOT NULL,
		downloaded_at INTEGER NOT NULL,
		file_size INTEGER
	)`)

	if err != nil {
		return nil, err
	}

	return db, nil
}

// Store keeps the manifest in a single SQLite table. Save replaces the full
// set in one transaction, matching the overwrite semantics of the JSON backend.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Load(ctx context.Context) ([]catalog.File, error) {
	logger := logctx.LoggerFromContext(ctx)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, local_path, mime_type, source, downloaded_at, file_size
		FROM cached_files ORDER BY downloaded_at`)
	if err != nil {
		logger.Warn("failed to query manifest, treating as empty", "err", err)

		return nil, nil
	}
	defer rows.Close()

	var files []catalog.File

	for rows.Next() {
		var f catalog.File

		var mimeType sql.NullString

		var fileSize sql.NullInt64

		if err := rows.Scan(&f.ID, &f.Name, &f.LocalPath, &mimeType, &f.Source, &f.DownloadedAt, &fileSize); err != nil {
			logger.Warn("skipping unreadable manifest row", "err", err)

			continue
		}

		f.MimeType = mimeType.String
		f.FileSize = fileSize.Int64

		files = append(files, f)
	}

	if err := rows.Err(); err != nil {
		logger.Warn("manifest scan interrupted", "err", err)
	}

	return files, nil
}

func (s *Store) Save(ctx context.Context, files []catalog.File) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin manifest transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cached_files`); err != nil {
		tx.Rollback()

		return fmt.Errorf("failed to clear manifest: %w", err)
	}

	for _, f := range files {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO cached_files (id, name, local_path, mime_type, source, downloaded_at, file_size)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.Name, f.LocalPath, nullable(f.MimeType), string(f.Source), f.DownloadedAt, f.FileSize,
		)
		if err != nil {
			tx.Rollback()

			return fmt.Errorf("failed to insert manifest entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit manifest: %w", err)
	}

	return nil
}

func (s *Store) Upsert(ctx context.Context, file catalog.File) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cached_files (id, name, local_path, mime_type, source, downloaded_at, file_size)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			local_path = excluded.local_path,
			mime_type = excluded.mime_type,
			source = excluded.source,
			downloaded_at = excluded.downloaded_at,
			file_size = excluded.file_size`,
		file.ID, file.Name, file.LocalPath, nullable(file.MimeType), string(file.Source), file.DownloadedAt, file.FileSize,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert manifest entry: %w", err)
	}

	return nil
}

func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cached_files WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to remove manifest entry: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}

	return s
}
