// Package content owns the durable blobs served by the range server.
//
// A blob becomes visible only once its catalog row exists. Blobs are written
// under a hidden staging directory and renamed into place before the row is
// inserted, so no reader ever observes a partially written file.
package content

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/italolelis/resumable_downloader/internal/downloader/progress"
	"github.com/italolelis/resumable_downloader/internal/logctx"
	"github.com/italolelis/resumable_downloader/internal/storage"
	"github.com/italolelis/resumable_downloader/internal/telemetry"
	"github.com/italolelis/resumable_downloader/internal/transfer"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644

	partialDir = ".partial"

	// BlockSize is the unit in which generated content is written.
	BlockSize = 1 << 20

	progressInterval = 100 * 1024 * 1024 // 100MB
)

// Store manages generated blobs on local disk and their catalog rows.
type Store struct {
	root       string
	repo       storage.FileRepository
	maxSize    int64
	instanceID string
	telemetry  *telemetry.Telemetry

	generating singleflight.Group
	now        func() time.Time
}

// NewStore creates the root and staging directories if needed. A maxSize of
// zero or less disables the generation size limit.
func NewStore(root string, repo storage.FileRepository, maxSize int64, tel *telemetry.Telemetry) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, partialDir), dirPerm); err != nil {
		return nil, &transfer.IOError{Operation: "create_root", Path: root, Err: err}
	}

	return &Store{
		root:       root,
		repo:       repo,
		maxSize:    maxSize,
		instanceID: storage.GenerateInstanceID(),
		telemetry:  tel,
		now:        time.Now,
	}, nil
}

// Root returns the directory blobs are published in.
func (s *Store) Root() string {
	return s.root
}

type generateResult struct {
	file    transfer.File
	created bool
}

// Generate publishes sizeBytes of pseudorandom content under name. If name is
// already published its metadata is returned with created=false, whatever
// sizeBytes says. Concurrent calls for the same name share one generation.
func (s *Store) Generate(ctx context.Context, name string, sizeBytes int64) (transfer.File, bool, error) {
	if err := ValidateName(name); err != nil {
		return transfer.File{}, false, err
	}

	if sizeBytes < 0 {
		return transfer.File{}, false, &transfer.InvalidArgumentError{Field: "size", Reason: "must not be negative"}
	}

	if s.maxSize > 0 && sizeBytes > s.maxSize {
		return transfer.File{}, false, &transfer.InvalidArgumentError{
			Field:  "size",
			Reason: fmt.Sprintf("must be at most %s", humanize.IBytes(uint64(s.maxSize))),
		}
	}

	if f, err := s.Stat(ctx, name); err == nil {
		return f, false, nil
	} else if !isNotFound(err) {
		return transfer.File{}, false, err
	}

	v, err, _ := s.generating.Do(name, func() (any, error) {
		// Another flight may have published the name between the Stat above and here.
		if f, err := s.Stat(ctx, name); err == nil {
			return generateResult{file: f}, nil
		} else if !isNotFound(err) {
			return nil, err
		}

		var f transfer.File

		err := s.telemetry.InstrumentGeneration(ctx, sizeBytes, func(ctx context.Context) error {
			var err error

			f, err = s.generate(ctx, name, sizeBytes)

			return err
		})
		if err != nil {
			return nil, err
		}

		s.recordSize(ctx)

		return generateResult{file: f, created: true}, nil
	})
	if err != nil {
		return transfer.File{}, false, err
	}

	res := v.(generateResult)

	return res.file, res.created, nil
}

func (s *Store) generate(ctx context.Context, name string, sizeBytes int64) (transfer.File, error) {
	logger := logctx.LoggerFromContext(ctx).With("file_name", name)

	logger.Info("generating file", "file_size", humanize.IBytes(uint64(sizeBytes)))

	tmpPath := filepath.Join(s.root, partialDir, uuid.NewString())

	out, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return transfer.File{}, &transfer.IOError{Operation: "create_blob", Path: tmpPath, Err: err}
	}

	published := false

	defer func() {
		if !published {
			out.Close()

			if err := os.Remove(tmpPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
				logger.Warn("failed to remove staging file", "path", tmpPath, "err", err)
			}
		}
	}()

	hash, err := writeRandom(ctx, out, sizeBytes, func(written, total int64) {
		logger.Debug("generation progress",
			"written", humanize.IBytes(uint64(written)),
			"total", humanize.IBytes(uint64(total)),
			"percent", humanize.FtoaWithDigits(float64(written)*100/float64(total), 2))
	})
	if err != nil {
		return transfer.File{}, &transfer.IOError{Operation: "write_blob", Path: tmpPath, Err: err}
	}

	if err := out.Sync(); err != nil {
		return transfer.File{}, &transfer.IOError{Operation: "sync_blob", Path: tmpPath, Err: err}
	}

	if err := out.Close(); err != nil {
		return transfer.File{}, &transfer.IOError{Operation: "close_blob", Path: tmpPath, Err: err}
	}

	finalPath := s.path(name)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return transfer.File{}, &transfer.IOError{Operation: "rename_blob", Path: finalPath, Err: err}
	}

	published = true

	rec := storage.FileRecord{
		Name:        name,
		SizeBytes:   sizeBytes,
		ContentHash: hash,
		CreatedAt:   s.now().UTC().Truncate(time.Millisecond),
		GeneratedBy: s.instanceID,
	}

	if err := s.repo.InsertFile(ctx, rec); err != nil {
		if rmErr := os.Remove(finalPath); rmErr != nil {
			logger.Warn("failed to remove unpublished blob", "path", finalPath, "err", rmErr)
		}

		return transfer.File{}, &transfer.IOError{Operation: "publish_blob", Path: finalPath, Err: err}
	}

	logger.Info("file generated", "file_size", humanize.IBytes(uint64(sizeBytes)), "content_hash", hash)

	return toFile(rec), nil
}

// writeRandom streams sizeBytes of crypto/rand output into w in BlockSize
// blocks and returns the hex SHA-256 of what was written.
func writeRandom(ctx context.Context, w io.Writer, sizeBytes int64, onProgress progress.Func) (string, error) {
	hasher := sha256.New()
	dst := io.MultiWriter(w, hasher)
	src := progress.NewReader(io.LimitReader(rand.Reader, sizeBytes), sizeBytes, progressInterval, onProgress)

	buf := make([]byte, BlockSize)

	for written := int64(0); written < sizeBytes; {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n := min(int64(len(buf)), sizeBytes-written)

		if _, err := io.ReadFull(src, buf[:n]); err != nil {
			return "", fmt.Errorf("failed to read random data: %w", err)
		}

		if _, err := dst.Write(buf[:n]); err != nil {
			return "", err
		}

		written += n
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Stat returns the published metadata of name.
func (s *Store) Stat(ctx context.Context, name string) (transfer.File, error) {
	if err := ValidateName(name); err != nil {
		return transfer.File{}, &transfer.NotFoundError{Name: name, Err: err}
	}

	rec, err := s.repo.GetFile(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return transfer.File{}, &transfer.NotFoundError{Name: name, Err: err}
	}

	if err != nil {
		return transfer.File{}, &transfer.IOError{Operation: "stat", Err: err}
	}

	return toFile(rec), nil
}

// List returns every published file ordered by name.
func (s *Store) List(ctx context.Context) ([]transfer.File, error) {
	records, err := s.repo.ListFiles(ctx)
	if err != nil {
		return nil, &transfer.IOError{Operation: "list", Err: err}
	}

	files := make([]transfer.File, 0, len(records))
	for _, rec := range records {
		files = append(files, toFile(rec))
	}

	return files, nil
}

// Hash recomputes the SHA-256 of the stored content by streaming it from disk.
func (s *Store) Hash(ctx context.Context, name string) (string, error) {
	blob, err := s.Open(ctx, name)
	if err != nil {
		return "", err
	}
	defer blob.Close()

	return hashReader(blob.Section(0, blob.File.SizeBytes), blob.path)
}

func hashReader(r io.Reader, path string) (string, error) {
	hasher := sha256.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return "", &transfer.IOError{Operation: "hash", Path: path, Err: err}
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Open returns a read handle on a published blob. The caller must Close it.
func (s *Store) Open(ctx context.Context, name string) (*Blob, error) {
	f, err := s.Stat(ctx, name)
	if err != nil {
		return nil, err
	}

	path := s.path(name)

	fh, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &transfer.NotFoundError{Name: name, Err: err}
	}

	if err != nil {
		return nil, &transfer.IOError{Operation: "open", Path: path, Err: err}
	}

	info, err := fh.Stat()
	if err != nil {
		fh.Close()

		return nil, &transfer.IOError{Operation: "open", Path: path, Err: err}
	}

	if info.Size() != f.SizeBytes {
		fh.Close()

		return nil, &transfer.IOError{
			Operation: "open",
			Path:      path,
			Err:       fmt.Errorf("blob is %d bytes, catalog says %d", info.Size(), f.SizeBytes),
		}
	}

	return &Blob{File: f, path: path, fh: fh}, nil
}

// Delete unpublishes name and removes its blob.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := s.repo.DeleteFile(ctx, name); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &transfer.NotFoundError{Name: name, Err: err}
		}

		return &transfer.IOError{Operation: "unpublish", Err: err}
	}

	path := s.path(name)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &transfer.IOError{Operation: "remove_blob", Path: path, Err: err}
	}

	s.recordSize(ctx)

	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.root, name)
}

func (s *Store) recordSize(ctx context.Context) {
	if !s.telemetry.Enabled() {
		return
	}

	files, err := s.List(ctx)
	if err != nil {
		return
	}

	var total int64
	for _, f := range files {
		total += f.SizeBytes
	}

	s.telemetry.RecordStoreSize(ctx, total)
}

func toFile(rec storage.FileRecord) transfer.File {
	return transfer.File{
		Name:        rec.Name,
		SizeBytes:   rec.SizeBytes,
		ContentHash: rec.ContentHash,
		CreatedAt:   rec.CreatedAt,
	}
}

func isNotFound(err error) bool {
	var nf *transfer.NotFoundError

	return errors.As(err, &nf)
}
