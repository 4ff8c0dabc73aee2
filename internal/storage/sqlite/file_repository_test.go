package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/resumable_downloader/internal/storage"
)

func newTestRepository(t *testing.T) *FileRepository {
	t.Helper()

	db, err := InitDB(filepath.Join(t.TempDir(), "files.db"))
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return NewFileRepository(db)
}

func TestFileRepository_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := storage.FileRecord{
		Name:        "demo.bin",
		SizeBytes:   5242880,
		ContentHash: "abc123",
		CreatedAt:   created,
		GeneratedBy: "host-1-deadbeef",
	}

	require.NoError(t, repo.InsertFile(ctx, rec))

	got, err := repo.GetFile(ctx, "demo.bin")
	require.NoError(t, err)

	assert.Equal(t, rec.Name, got.Name)
	assert.Equal(t, rec.SizeBytes, got.SizeBytes)
	assert.Equal(t, rec.ContentHash, got.ContentHash)
	assert.Equal(t, rec.GeneratedBy, got.GeneratedBy)
	assert.True(t, created.Equal(got.CreatedAt), "created_at = %v, want %v", got.CreatedAt, created)
}

func TestFileRepository_GetMissing(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.GetFile(context.Background(), "missing.bin")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFileRepository_InsertDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	rec := storage.FileRecord{Name: "demo.bin", SizeBytes: 1, ContentHash: "a", CreatedAt: time.Now()}
	require.NoError(t, repo.InsertFile(ctx, rec))

	err := repo.InsertFile(ctx, rec)
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestFileRepository_ListOrderedByName(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	for _, name := range []string{"c.bin", "a.bin", "b.bin"} {
		require.NoError(t, repo.InsertFile(ctx, storage.FileRecord{Name: name, ContentHash: "h", CreatedAt: time.Now()}))
	}

	records, err := repo.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "a.bin", records[0].Name)
	assert.Equal(t, "b.bin", records[1].Name)
	assert.Equal(t, "c.bin", records[2].Name)
}

func TestFileRepository_ListEmpty(t *testing.T) {
	records, err := newTestRepository(t).ListFiles(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestFileRepository_ListFilesCreatedBefore(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	now := time.Now().UTC()
	require.NoError(t, repo.InsertFile(ctx, storage.FileRecord{Name: "old.bin", ContentHash: "h", CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, repo.InsertFile(ctx, storage.FileRecord{Name: "new.bin", ContentHash: "h", CreatedAt: now}))

	records, err := repo.ListFilesCreatedBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "old.bin", records[0].Name)
}

func TestFileRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	require.NoError(t, repo.InsertFile(ctx, storage.FileRecord{Name: "demo.bin", ContentHash: "h", CreatedAt: time.Now()}))
	require.NoError(t, repo.DeleteFile(ctx, "demo.bin"))

	_, err := repo.GetFile(ctx, "demo.bin")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, repo.DeleteFile(ctx, "demo.bin"), storage.ErrNotFound)
}

func TestInstrumentedFileRepository_NilTelemetry(t *testing.T) {
	ctx := context.Background()

	db, err := InitDB(filepath.Join(t.TempDir(), "files.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewInstrumentedFileRepository(db, nil)

	require.NoError(t, repo.InsertFile(ctx, storage.FileRecord{Name: "demo.bin", ContentHash: "h", CreatedAt: time.Now()}))

	_, err = repo.GetFile(ctx, "missing.bin")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	records, err := repo.ListFiles(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	require.NoError(t, repo.DeleteFile(ctx, "demo.bin"))
}
