package downloader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/italolelis/resumable_downloader/internal/logctx"
	"github.com/italolelis/resumable_downloader/internal/telemetry"
	"github.com/italolelis/resumable_downloader/internal/transfer"
)

// DefaultChunkSize bounds both memory per fetch and pause latency.
const DefaultChunkSize = 1 << 20

type Downloader struct {
	fetcher      transfer.Fetcher
	chunkSize    int64
	fetchTimeout time.Duration
	maxParallel  int
	telemetry    *telemetry.Telemetry
}

func NewDownloader(
	fetcher transfer.Fetcher,
	chunkSize int64,
	fetchTimeout time.Duration,
	maxParallel int,
	tel *telemetry.Telemetry,
) *Downloader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	if maxParallel <= 0 {
		maxParallel = 1
	}

	return &Downloader{
		fetcher:      fetcher,
		chunkSize:    chunkSize,
		fetchTimeout: fetchTimeout,
		maxParallel:  maxParallel,
		telemetry:    tel,
	}
}

// NewSession looks up name on the server and prepares an idle session.
func (d *Downloader) NewSession(ctx context.Context, name string, sink Sink, observers ...Observer) (*Session, error) {
	info, err := d.fetcher.Info(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	logctx.LoggerFromContext(ctx).Debug("prepared download",
		"file_name", info.Name,
		"file_size", humanize.IBytes(uint64(info.SizeBytes)),
		"content_hash", info.ContentHash)

	return NewSession(*info, d.fetcher, sink, SessionConfig{
		ChunkSize:    d.chunkSize,
		FetchTimeout: d.fetchTimeout,
		Telemetry:    d.telemetry,
	}, observers...), nil
}

// Download creates a session for name and runs it once.
func (d *Downloader) Download(ctx context.Context, name string, sink Sink, pause *PauseSignal, observers ...Observer) (*Session, error) {
	session, err := d.NewSession(ctx, name, sink, observers...)
	if err != nil {
		return nil, err
	}

	return session, session.Run(ctx, pause)
}

// Request describes one file of a DownloadAll batch.
type Request struct {
	Name      string
	Sink      Sink
	Observers []Observer

	// Pause, when set, replaces the batch signal for this file only.
	Pause *PauseSignal
}

// Result is the outcome of one Request. Session is nil when the file info
// could not be fetched.
type Result struct {
	Name    string
	Session *Session
	Err     error
}

// DownloadAll runs independent sessions with at most maxParallel in flight.
// A failing file does not stop the others; per-file outcomes are returned in
// request order.
func (d *Downloader) DownloadAll(ctx context.Context, requests []Request, pause *PauseSignal) ([]Result, error) {
	if len(requests) == 0 {
		return nil, errors.New("no files to download")
	}

	logger := logctx.LoggerFromContext(ctx)

	results := make([]Result, len(requests))

	var wg errgroup.Group
	wg.SetLimit(d.maxParallel)

	for i := range requests {
		req := requests[i]

		wg.Go(func() error {
			signal := pause
			if req.Pause != nil {
				signal = req.Pause
			}

			session, err := d.Download(ctx, req.Name, req.Sink, signal, req.Observers...)
			results[i] = Result{Name: req.Name, Session: session, Err: err}

			switch {
			case err == nil:
				logger.Info("downloaded file", "file_name", req.Name)
			case errors.Is(err, ErrPaused):
				logger.Info("download paused", "file_name", req.Name)
			default:
				logger.Error("failed to download file", "file_name", req.Name, "err", err)
			}

			return nil
		})
	}

	_ = wg.Wait()

	var errs []error

	for _, res := range results {
		if res.Err != nil && !errors.Is(res.Err, ErrPaused) {
			errs = append(errs, fmt.Errorf("%s: %w", res.Name, res.Err))
		}
	}

	return results, errors.Join(errs...)
}
