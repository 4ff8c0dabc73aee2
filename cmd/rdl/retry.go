package main

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/italolelis/resumable_downloader/internal/downloader"
	"github.com/italolelis/resumable_downloader/internal/logctx"
	"github.com/italolelis/resumable_downloader/internal/transfer"
)

const (
	retryInitialInterval = 500 * time.Millisecond
	retryMaxInterval     = 10 * time.Second
)

// runWithRetry drives session until it completes, pauses, or fails with an
// error retrying cannot fix. Each retry resumes from the committed offset;
// an integrity failure resets the session first.
func runWithRetry(ctx context.Context, session *downloader.Session, pause *downloader.PauseSignal, retries uint) error {
	logger := logctx.LoggerFromContext(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := session.Run(ctx, pause)
		if err == nil {
			return struct{}{}, nil
		}

		if !retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}

		var integrityErr *transfer.IntegrityError
		if errors.As(err, &integrityErr) {
			if resetErr := session.Reset(); resetErr != nil {
				return struct{}{}, backoff.Permanent(errors.Join(err, resetErr))
			}
		}

		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(retries+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("download attempt failed, retrying",
				"file_name", session.Name(),
				"committed_offset", session.CommittedOffset(),
				"retry_in", next.String(),
				"err", err)
		}),
	)

	return err
}

// retryable reports whether running the session again can succeed.
func retryable(err error) bool {
	var (
		notFound  *transfer.NotFoundError
		invalid   *transfer.InvalidArgumentError
		rangeErr  *transfer.RangeNotSatisfiableError
		ioErr     *transfer.IOError
		transport *transfer.TransportError
	)

	switch {
	case errors.Is(err, downloader.ErrPaused),
		errors.Is(err, downloader.ErrAlreadyRunning),
		errors.As(err, &notFound),
		errors.As(err, &invalid),
		errors.As(err, &rangeErr):
		return false
	case errors.As(err, &transport):
		return transport.StatusCode == 0 || transport.StatusCode >= 500
	case errors.As(err, &ioErr):
		// Local disk failures do not heal between attempts.
		return false
	default:
		return true
	}
}
