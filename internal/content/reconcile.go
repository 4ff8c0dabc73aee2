package content

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/italolelis/resumable_downloader/internal/logctx"
	"github.com/italolelis/resumable_downloader/internal/storage"
	"github.com/italolelis/resumable_downloader/internal/transfer"
)

// ReconcileReport summarizes what Reconcile changed.
type ReconcileReport struct {
	StaleRemoved int // staging files left by an interrupted generation
	RowsDropped  int // catalog rows whose blob is gone
	Registered   int // blobs on disk that had no catalog row
}

// Reconcile brings the catalog and the root directory back in agreement. It
// is meant to run once at startup, before the store serves requests.
func (s *Store) Reconcile(ctx context.Context) (ReconcileReport, error) {
	logger := logctx.LoggerFromContext(ctx)

	var report ReconcileReport

	staging := filepath.Join(s.root, partialDir)

	stale, err := os.ReadDir(staging)
	if err != nil {
		return report, &transfer.IOError{Operation: "reconcile", Path: staging, Err: err}
	}

	for _, entry := range stale {
		path := filepath.Join(staging, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			logger.Warn("failed to remove stale staging file", "path", path, "err", err)

			continue
		}

		report.StaleRemoved++
	}

	records, err := s.repo.ListFiles(ctx)
	if err != nil {
		return report, &transfer.IOError{Operation: "reconcile", Err: err}
	}

	known := make(map[string]struct{}, len(records))

	for _, rec := range records {
		if _, err := os.Stat(s.path(rec.Name)); errors.Is(err, fs.ErrNotExist) {
			if err := s.repo.DeleteFile(ctx, rec.Name); err != nil && !errors.Is(err, storage.ErrNotFound) {
				return report, &transfer.IOError{Operation: "reconcile", Err: err}
			}

			logger.Warn("dropped catalog row without blob", "file_name", rec.Name)

			report.RowsDropped++

			continue
		}

		known[rec.Name] = struct{}{}
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return report, &transfer.IOError{Operation: "reconcile", Path: s.root, Err: err}
	}

	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || ValidateName(name) != nil {
			continue
		}

		if _, ok := known[name]; ok {
			continue
		}

		if err := s.register(ctx, name); err != nil {
			logger.Warn("failed to register blob", "file_name", name, "err", err)

			continue
		}

		report.Registered++
	}

	logger.Info("content store reconciled",
		"stale_removed", report.StaleRemoved,
		"rows_dropped", report.RowsDropped,
		"registered", report.Registered)

	s.recordSize(ctx)

	return report, nil
}

// register hashes an unknown blob in place and inserts its row.
func (s *Store) register(ctx context.Context, name string) error {
	path := s.path(name)

	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return err
	}

	hash, err := hashReader(fh, path)
	if err != nil {
		return err
	}

	return s.repo.InsertFile(ctx, storage.FileRecord{
		Name:        name,
		SizeBytes:   info.Size(),
		ContentHash: hash,
		CreatedAt:   info.ModTime().UTC().Truncate(time.Millisecond),
		GeneratedBy: s.instanceID,
	})
}
