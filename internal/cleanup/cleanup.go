package cleanup

import (
	"context"
	"errors"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/italolelis/resumable_downloader/internal/logctx"
	"github.com/italolelis/resumable_downloader/internal/storage"
	"github.com/italolelis/resumable_downloader/internal/transfer"
)

// Catalog lists the files eligible for retention.
type Catalog interface {
	ListFilesCreatedBefore(ctx context.Context, t time.Time) ([]storage.FileRecord, error)
}

// Deleter unpublishes and removes a file.
type Deleter interface {
	Delete(ctx context.Context, name string) error
}

// DeleteExpiredFiles deletes files created more than keepDuration before now
// and returns the records it removed. A keepDuration of zero or less keeps
// everything.
func DeleteExpiredFiles(
	ctx context.Context,
	catalog Catalog,
	store Deleter,
	keepDuration time.Duration,
	now time.Time,
) ([]storage.FileRecord, error) {
	if keepDuration <= 0 {
		return nil, nil
	}

	logger := logctx.LoggerFromContext(ctx)

	expired, err := catalog.ListFilesCreatedBefore(ctx, now.Add(-keepDuration))
	if err != nil {
		return nil, err
	}

	var deleted []storage.FileRecord

	for _, rec := range expired {
		if err := store.Delete(ctx, rec.Name); err != nil {
			var nf *transfer.NotFoundError
			if errors.As(err, &nf) {
				continue // already deleted
			}

			logger.Error("failed to delete expired file", "file_name", rec.Name, "err", err)

			return deleted, err
		}

		logger.Info("deleted expired file",
			"file_name", rec.Name,
			"file_size", humanize.IBytes(uint64(rec.SizeBytes)),
			"created", humanize.RelTime(rec.CreatedAt, now, "ago", "from now"))

		deleted = append(deleted, rec)
	}

	return deleted, nil
}
