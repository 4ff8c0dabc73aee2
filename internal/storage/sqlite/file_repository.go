package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/italolelis/resumable_downloader/internal/storage"
)

// FileRepository implements storage.FileRepository on top of SQLite.
type FileRepository struct {
	db *sql.DB
}

func NewFileRepository(dbConn *sql.DB) *FileRepository {
	return &FileRepository{db: dbConn}
}

func (r *FileRepository) GetFile(ctx context.Context, name string) (storage.FileRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT name, size_bytes, content_hash, created_at, generated_by FROM files WHERE name = ?`, name)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.FileRecord{}, storage.ErrNotFound
	}

	return rec, err
}

func (r *FileRepository) ListFiles(ctx context.Context) ([]storage.FileRecord, error) {
	return r.query(ctx,
		`SELECT name, size_bytes, content_hash, created_at, generated_by FROM files ORDER BY name`)
}

// ListFilesCreatedBefore returns the files created strictly before t, oldest first.
func (r *FileRepository) ListFilesCreatedBefore(ctx context.Context, t time.Time) ([]storage.FileRecord, error) {
	return r.query(ctx,
		`SELECT name, size_bytes, content_hash, created_at, generated_by
		FROM files
		WHERE created_at < ?
		ORDER BY created_at, name`, t.UTC())
}

func (r *FileRepository) InsertFile(ctx context.Context, rec storage.FileRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO files (name, size_bytes, content_hash, created_at, generated_by) VALUES (?, ?, ?, ?, ?)`,
		rec.Name, rec.SizeBytes, rec.ContentHash, rec.CreatedAt.UTC(), rec.GeneratedBy,
	)

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return storage.ErrAlreadyExists
	}

	return err
}

func (r *FileRepository) DeleteFile(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE name = ?`, name)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

func (r *FileRepository) query(ctx context.Context, query string, args ...any) ([]storage.FileRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []storage.FileRecord{}

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (storage.FileRecord, error) {
	var (
		rec         storage.FileRecord
		generatedBy sql.NullString
	)

	if err := s.Scan(&rec.Name, &rec.SizeBytes, &rec.ContentHash, &rec.CreatedAt, &generatedBy); err != nil {
		return storage.FileRecord{}, fmt.Errorf("failed to scan file record: %w", err)
	}

	rec.GeneratedBy = ""
	if generatedBy.Valid {
		rec.GeneratedBy = generatedBy.String
	}

	return rec, nil
}
