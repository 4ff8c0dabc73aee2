package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/italolelis/resumable_downloader/internal/storage"
	"github.com/italolelis/resumable_downloader/internal/telemetry"
)

// InstrumentedFileRepository wraps FileRepository with telemetry.
type InstrumentedFileRepository struct {
	repo      *FileRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedFileRepository creates a new instrumented file repository.
func NewInstrumentedFileRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedFileRepository {
	return &InstrumentedFileRepository{
		repo:      NewFileRepository(dbConn),
		telemetry: tel,
	}
}

// GetFile retrieves one record with telemetry. A missing row is not counted as an error.
func (r *InstrumentedFileRepository) GetFile(ctx context.Context, name string) (storage.FileRecord, error) {
	var (
		result storage.FileRecord
		err    error
	)

	instrumentedErr := r.telemetry.InstrumentStoreOperation(ctx, "get_file", func(ctx context.Context) error {
		result, err = r.repo.GetFile(ctx, name)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}

		return err
	})
	if instrumentedErr != nil {
		return storage.FileRecord{}, instrumentedErr
	}

	return result, err
}

// ListFiles lists all records with telemetry.
func (r *InstrumentedFileRepository) ListFiles(ctx context.Context) ([]storage.FileRecord, error) {
	var result []storage.FileRecord

	err := r.telemetry.InstrumentStoreOperation(ctx, "list_files", func(ctx context.Context) error {
		var err error

		result, err = r.repo.ListFiles(ctx)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ListFilesCreatedBefore lists retention candidates with telemetry.
func (r *InstrumentedFileRepository) ListFilesCreatedBefore(ctx context.Context, t time.Time) ([]storage.FileRecord, error) {
	var result []storage.FileRecord

	err := r.telemetry.InstrumentStoreOperation(ctx, "list_files_created_before", func(ctx context.Context) error {
		var err error

		result, err = r.repo.ListFilesCreatedBefore(ctx, t)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// InsertFile publishes a record with telemetry.
func (r *InstrumentedFileRepository) InsertFile(ctx context.Context, rec storage.FileRecord) error {
	return r.telemetry.InstrumentStoreOperation(ctx, "insert_file", func(ctx context.Context) error {
		return r.repo.InsertFile(ctx, rec)
	})
}

// DeleteFile unpublishes a record with telemetry.
func (r *InstrumentedFileRepository) DeleteFile(ctx context.Context, name string) error {
	return r.telemetry.InstrumentStoreOperation(ctx, "delete_file", func(ctx context.Context) error {
		return r.repo.DeleteFile(ctx, name)
	})
}
