package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no catalog row exists for a name.
	ErrNotFound = errors.New("file record not found")
	// ErrAlreadyExists is returned when inserting a name that is already published.
	ErrAlreadyExists = errors.New("file record already exists")
)

// FileRecord represents a published blob in the catalog.
type FileRecord struct {
	Name        string
	SizeBytes   int64
	ContentHash string
	CreatedAt   time.Time
	GeneratedBy string
}

type FileReadRepository interface {
	GetFile(ctx context.Context, name string) (FileRecord, error)
	// ListFiles returns every record ordered by name.
	ListFiles(ctx context.Context) ([]FileRecord, error)
	// ListFilesCreatedBefore returns the records eligible for retention.
	ListFilesCreatedBefore(ctx context.Context, t time.Time) ([]FileRecord, error)
}

type FileWriteRepository interface {
	InsertFile(ctx context.Context, rec FileRecord) error // publishes the blob
	DeleteFile(ctx context.Context, name string) error    // unpublishes the blob
}

// FileRepository is the full catalog contract used by the content store.
type FileRepository interface {
	FileReadRepository
	FileWriteRepository
}
