package downloader

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/italolelis/resumable_downloader/internal/transfer"
)

// fakeFetcher serves in-memory files and records every requested range.
type fakeFetcher struct {
	mu     sync.Mutex
	files  map[string][]byte
	hashes map[string]string
	ranges []string

	// hook runs before a range is served; a non-nil error or chunk
	// replaces the normal response.
	hook func(ctx context.Context, start, end int64) ([]byte, error)
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{files: map[string][]byte{}, hashes: map[string]string{}}
}

func (f *fakeFetcher) add(t *testing.T, name string, size int) []byte {
	t.Helper()

	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)

	sum := sha256.Sum256(data)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.files[name] = data
	f.hashes[name] = hex.EncodeToString(sum[:])

	return data
}

func (f *fakeFetcher) file(name string) transfer.File {
	f.mu.Lock()
	defer f.mu.Unlock()

	return transfer.File{Name: name, SizeBytes: int64(len(f.files[name])), ContentHash: f.hashes[name], CreatedAt: time.Now()}
}

func (f *fakeFetcher) Info(_ context.Context, name string) (*transfer.File, error) {
	f.mu.Lock()
	_, ok := f.files[name]
	f.mu.Unlock()

	if !ok {
		return nil, &transfer.NotFoundError{Name: name}
	}

	file := f.file(name)

	return &file, nil
}

func (f *fakeFetcher) FetchRange(ctx context.Context, name string, start, end int64) ([]byte, error) {
	f.mu.Lock()
	f.ranges = append(f.ranges, fmt.Sprintf("%d-%d", start, end))
	data, ok := f.files[name]
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		chunk, err := hook(ctx, start, end)
		if err != nil || chunk != nil {
			return chunk, err
		}
	}

	if !ok {
		return nil, &transfer.NotFoundError{Name: name}
	}

	if start < 0 || end >= int64(len(data)) || start > end {
		return nil, &transfer.RangeNotSatisfiableError{Name: name, Size: int64(len(data))}
	}

	return append([]byte(nil), data[start:end+1]...), nil
}

func (f *fakeFetcher) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.ranges...)
}

func (f *fakeFetcher) setHook(hook func(ctx context.Context, start, end int64) ([]byte, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.hook = hook
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)

	return hex.EncodeToString(sum[:])
}
