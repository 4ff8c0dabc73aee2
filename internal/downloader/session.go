package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/italolelis/resumable_downloader/internal/logctx"
	"github.com/italolelis/resumable_downloader/internal/telemetry"
	"github.com/italolelis/resumable_downloader/internal/transfer"
)

// Session downloads one file in fixed-size chunks. committed only grows, by
// the exact length of each chunk appended to the sink, and the sink always
// holds exactly committed bytes.
type Session struct {
	id           string
	name         string
	totalSize    int64
	expectedHash string

	fetcher      transfer.Fetcher
	sink         Sink
	chunkSize    int64
	fetchTimeout time.Duration
	telemetry    *telemetry.Telemetry

	mu        sync.Mutex
	status    Status
	committed int64
	hasher    hash.Hash
	lastErr   error
	observers []Observer
}

// SessionConfig carries the per-session tunables.
type SessionConfig struct {
	ChunkSize    int64
	FetchTimeout time.Duration
	Telemetry    *telemetry.Telemetry
}

// NewSession creates an idle session for a file whose metadata was already
// fetched. A zero ChunkSize selects DefaultChunkSize.
func NewSession(file transfer.File, fetcher transfer.Fetcher, sink Sink, cfg SessionConfig, observers ...Observer) *Session {
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	return &Session{
		id:           uuid.NewString(),
		name:         file.Name,
		totalSize:    file.SizeBytes,
		expectedHash: strings.ToLower(file.ContentHash),
		fetcher:      fetcher,
		sink:         sink,
		chunkSize:    chunkSize,
		fetchTimeout: cfg.FetchTimeout,
		telemetry:    cfg.Telemetry,
		status:       StatusIdle,
		hasher:       sha256.New(),
		observers:    observers,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Name() string {
	return s.name
}

func (s *Session) TotalSize() int64 {
	return s.totalSize
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

// CommittedOffset returns the number of contiguous bytes appended so far.
func (s *Session) CommittedOffset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.committed
}

// LastError returns the error that failed the session, or nil unless the
// session is failed.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastErr
}

// Progress returns the current snapshot.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.progressLocked()
}

func (s *Session) progressLocked() Progress {
	return Progress{
		SessionID:        s.id,
		Name:             s.name,
		Status:           s.status,
		BytesTransferred: s.committed,
		TotalSize:        s.totalSize,
		Percent:          percent(s.committed, s.totalSize, s.status),
		Err:              s.lastErr,
	}
}

// Run fetches the remaining chunks starting at the committed offset. It
// returns nil once the content was verified and handed to the sink,
// an error wrapping ErrPaused when it stopped at a chunk boundary because
// pause fired or ctx was cancelled, and the failure otherwise.
//
// Run on a completed session is a no-op. A session that failed its
// integrity check must be Reset before it can run again.
func (s *Session) Run(ctx context.Context, pause *PauseSignal) error {
	s.mu.Lock()

	switch s.status {
	case StatusRunning:
		s.mu.Unlock()

		return ErrAlreadyRunning
	case StatusCompleted:
		s.mu.Unlock()

		return nil
	case StatusFailed:
		var integrityErr *transfer.IntegrityError
		if errors.As(s.lastErr, &integrityErr) {
			err := s.lastErr
			s.mu.Unlock()

			return err
		}
	}

	s.status = StatusRunning
	s.lastErr = nil
	snapshot := s.progressLocked()
	observers := s.observers
	s.mu.Unlock()

	notify(observers, snapshot)

	ctx = logctx.With(ctx, "session_id", s.id, "file_name", s.name)

	return s.telemetry.InstrumentDownload(ctx, func(ctx context.Context) error {
		return s.loop(ctx, pause)
	}, classifyOutcome)
}

func (s *Session) loop(ctx context.Context, pause *PauseSignal) error {
	logger := logctx.LoggerFromContext(ctx)

	logger.Debug("download loop started", "committed_offset", s.CommittedOffset(), "total_size", s.totalSize)

	for {
		offset := s.CommittedOffset()

		if offset >= s.totalSize {
			return s.complete(ctx)
		}

		if pause.Requested() {
			return s.pause(ctx, ErrPaused)
		}

		if err := ctx.Err(); err != nil {
			return s.pause(ctx, fmt.Errorf("%w: %w", ErrPaused, err))
		}

		if sinkSize := s.sink.Size(); sinkSize != offset {
			return s.fail(ctx, &transfer.ProtocolError{
				Name:     s.name,
				Reason:   "sink out of sync with committed offset",
				Expected: offset,
				Actual:   sinkSize,
			})
		}

		start := offset
		end := min(start+s.chunkSize-1, s.totalSize-1)

		chunk, err := s.fetch(ctx, start, end)
		if err != nil {
			// The parent context ending mid-fetch is a pause, not a failure.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return s.pause(ctx, fmt.Errorf("%w: %w", ErrPaused, ctxErr))
			}

			return s.fail(ctx, err)
		}

		want := end - start + 1
		if int64(len(chunk)) != want {
			return s.fail(ctx, &transfer.ProtocolError{
				Name:     s.name,
				Reason:   fmt.Sprintf("chunk %d-%d has the wrong length", start, end),
				Expected: want,
				Actual:   int64(len(chunk)),
			})
		}

		if err := s.sink.Append(chunk); err != nil {
			return s.fail(ctx, &transfer.IOError{Operation: "append_chunk", Err: err})
		}

		s.commit(chunk)
	}
}

func (s *Session) fetch(ctx context.Context, start, end int64) ([]byte, error) {
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}

	return s.fetcher.FetchRange(ctx, s.name, start, end)
}

func (s *Session) commit(chunk []byte) {
	s.mu.Lock()
	s.hasher.Write(chunk)
	s.committed += int64(len(chunk))
	snapshot := s.progressLocked()
	observers := s.observers
	s.mu.Unlock()

	notify(observers, snapshot)
}

func (s *Session) complete(ctx context.Context) error {
	if size := s.sink.Size(); size != s.totalSize {
		return s.fail(ctx, &transfer.ProtocolError{
			Name:     s.name,
			Reason:   "assembled size does not match the file size",
			Expected: s.totalSize,
			Actual:   size,
		})
	}

	s.mu.Lock()
	actual := hex.EncodeToString(s.hasher.Sum(nil))
	s.mu.Unlock()

	if s.expectedHash != "" && actual != s.expectedHash {
		return s.fail(ctx, &transfer.IntegrityError{Name: s.name, Expected: s.expectedHash, Actual: actual})
	}

	if err := s.sink.Finalize(); err != nil {
		return s.fail(ctx, &transfer.IOError{Operation: "finalize", Err: err})
	}

	logctx.LoggerFromContext(ctx).Info("download completed", "total_size", s.totalSize, "content_hash", actual)

	s.transition(StatusCompleted, nil)

	return nil
}

func (s *Session) pause(ctx context.Context, err error) error {
	logctx.LoggerFromContext(ctx).Info("download paused", "committed_offset", s.CommittedOffset())

	s.transition(StatusPaused, nil)

	return err
}

func (s *Session) fail(ctx context.Context, err error) error {
	logctx.LoggerFromContext(ctx).Error("download failed", "committed_offset", s.CommittedOffset(), "err", err)

	s.transition(StatusFailed, err)

	return err
}

func (s *Session) transition(status Status, err error) {
	s.mu.Lock()
	s.status = status
	s.lastErr = err
	snapshot := s.progressLocked()
	observers := s.observers
	s.mu.Unlock()

	notify(observers, snapshot)
}

// Reset discards everything received and returns the session to idle.
func (s *Session) Reset() error {
	s.mu.Lock()

	if s.status == StatusRunning {
		s.mu.Unlock()

		return ErrAlreadyRunning
	}

	if err := s.sink.Reset(); err != nil {
		s.mu.Unlock()

		return fmt.Errorf("failed to reset sink: %w", err)
	}

	s.committed = 0
	s.hasher.Reset()
	s.status = StatusIdle
	s.lastErr = nil
	snapshot := s.progressLocked()
	observers := s.observers
	s.mu.Unlock()

	notify(observers, snapshot)

	return nil
}

func notify(observers []Observer, p Progress) {
	for _, o := range observers {
		o.OnProgress(p)
	}
}

// classifyOutcome labels a Run result for metrics.
func classifyOutcome(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, ErrPaused):
		return "paused"
	default:
		return "failed"
	}
}
