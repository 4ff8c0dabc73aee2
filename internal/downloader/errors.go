package downloader

import "errors"

var (
	// ErrPaused is returned by Run when the session stopped at a chunk boundary
	// because a pause was requested or the context was cancelled.
	ErrPaused = errors.New("download paused")
	// ErrAlreadyRunning is returned when a session already has an active loop.
	ErrAlreadyRunning = errors.New("download already running")
	// ErrNotResettable is returned by sinks that cannot discard what they received.
	ErrNotResettable = errors.New("sink cannot be reset")
)
