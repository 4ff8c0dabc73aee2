package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/resumable_downloader/internal/downloader"
	"github.com/italolelis/resumable_downloader/internal/transfer"
)

// flakyFetcher serves data and lets each test inject per-call failures.
type flakyFetcher struct {
	mu    sync.Mutex
	data  []byte
	calls int
	hook  func(call int, start, end int64) ([]byte, error)
}

func (f *flakyFetcher) Info(context.Context, string) (*transfer.File, error) {
	return nil, errors.New("not used")
}

func (f *flakyFetcher) FetchRange(_ context.Context, _ string, start, end int64) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.hook != nil {
		if chunk, err := f.hook(call, start, end); chunk != nil || err != nil {
			return chunk, err
		}
	}

	return append([]byte(nil), f.data[start:end+1]...), nil
}

func (f *flakyFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

func newTestSession(t *testing.T, fetcher *flakyFetcher) (*downloader.Session, *downloader.MemorySink) {
	t.Helper()

	sum := sha256.Sum256(fetcher.data)
	file := transfer.File{
		Name:        "demo.bin",
		SizeBytes:   int64(len(fetcher.data)),
		ContentHash: hex.EncodeToString(sum[:]),
		CreatedAt:   time.Now(),
	}

	sink := downloader.NewMemorySink()

	return downloader.NewSession(file, fetcher, sink, downloader.SessionConfig{ChunkSize: 4}), sink
}

func TestRunWithRetry_RecoversFromTransientFailures(t *testing.T) {
	fetcher := &flakyFetcher{
		data: []byte("0123456789abcdef"),
		hook: func(call int, start, _ int64) ([]byte, error) {
			if start == 4 && call <= 3 {
				return nil, &transfer.TransportError{Operation: "fetch_range", Message: "connection reset"}
			}

			return nil, nil
		},
	}

	session, sink := newTestSession(t, fetcher)

	err := runWithRetry(context.Background(), session, nil, 3)
	require.NoError(t, err)

	assert.Equal(t, downloader.StatusCompleted, session.Status())
	assert.Equal(t, fetcher.data, sink.Bytes())
}

func TestRunWithRetry_GivesUpAfterMaxTries(t *testing.T) {
	fetcher := &flakyFetcher{
		data: []byte("0123456789abcdef"),
		hook: func(int, int64, int64) ([]byte, error) {
			return nil, &transfer.TransportError{Operation: "fetch_range", StatusCode: 503, Message: "unavailable"}
		},
	}

	session, _ := newTestSession(t, fetcher)

	err := runWithRetry(context.Background(), session, nil, 1)

	var transportErr *transfer.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, 2, fetcher.Calls())
	assert.Equal(t, downloader.StatusFailed, session.Status())
}

func TestRunWithRetry_NotFoundIsPermanent(t *testing.T) {
	fetcher := &flakyFetcher{
		data: []byte("0123456789abcdef"),
		hook: func(int, int64, int64) ([]byte, error) {
			return nil, &transfer.NotFoundError{Name: "demo.bin"}
		},
	}

	session, _ := newTestSession(t, fetcher)

	err := runWithRetry(context.Background(), session, nil, 5)

	var notFound *transfer.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, 1, fetcher.Calls())
}

func TestRunWithRetry_ResetsAfterIntegrityFailure(t *testing.T) {
	fetcher := &flakyFetcher{data: []byte("0123456789abcdef")}
	fetcher.hook = func(call int, start, end int64) ([]byte, error) {
		// Corrupt the first chunk of the first pass only.
		if call == 1 {
			return []byte("XXXX"), nil
		}

		return nil, nil
	}

	session, sink := newTestSession(t, fetcher)

	err := runWithRetry(context.Background(), session, nil, 2)
	require.NoError(t, err)

	assert.Equal(t, fetcher.data, sink.Bytes())
	// 4 chunks for the corrupted pass, 4 more after the reset.
	assert.Equal(t, 8, fetcher.Calls())
}

func TestRunWithRetry_PauseIsNotRetried(t *testing.T) {
	fetcher := &flakyFetcher{data: []byte("0123456789abcdef")}
	session, _ := newTestSession(t, fetcher)

	pause := downloader.NewPauseSignal()
	pause.Pause()

	err := runWithRetry(context.Background(), session, pause, 3)
	require.ErrorIs(t, err, downloader.ErrPaused)

	assert.Equal(t, downloader.StatusPaused, session.Status())
	assert.Equal(t, 0, fetcher.Calls())
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{downloader.ErrPaused, false},
		{fmt.Errorf("%w: %w", downloader.ErrPaused, context.Canceled), false},
		{downloader.ErrAlreadyRunning, false},
		{&transfer.NotFoundError{Name: "x"}, false},
		{&transfer.InvalidArgumentError{Field: "name"}, false},
		{&transfer.RangeNotSatisfiableError{Name: "x", Size: 10}, false},
		{&transfer.IOError{Operation: "append_chunk"}, false},
		{&transfer.TransportError{Operation: "fetch_range", StatusCode: 400}, false},
		{&transfer.TransportError{Operation: "fetch_range", StatusCode: 502}, true},
		{&transfer.TransportError{Operation: "fetch_range", Err: context.DeadlineExceeded}, true},
		{&transfer.ProtocolError{Name: "x"}, true},
		{&transfer.IntegrityError{Name: "x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}
