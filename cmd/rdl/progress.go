package main

import (
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/italolelis/resumable_downloader/internal/downloader"
)

// progressObserver renders one session on a terminal progress bar. The bar
// is created on the first snapshot so the total is known.
type progressObserver struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

func newProgressObserver(w io.Writer) *progressObserver {
	return &progressObserver{w: w}
}

func (o *progressObserver) OnProgress(p downloader.Progress) {
	if o.bar == nil {
		o.bar = progressbar.NewOptions64(p.TotalSize,
			progressbar.OptionSetDescription("Downloading "+p.Name),
			progressbar.OptionSetWriter(o.w),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionShowCount(),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionOnCompletion(func() { _, _ = io.WriteString(o.w, "\n") }),
		)
	}

	_ = o.bar.Set64(p.BytesTransferred)

	switch p.Status {
	case downloader.StatusRunning:
		o.bar.Describe("Downloading " + p.Name)
	case downloader.StatusPaused:
		o.bar.Describe("Paused " + p.Name)
	case downloader.StatusFailed:
		o.bar.Describe("Failed " + p.Name)
	case downloader.StatusCompleted:
		_ = o.bar.Finish()
	}
}

// pauseAfter fires signal once a session has committed at least n bytes.
func pauseAfter(n int64, signal *downloader.PauseSignal) downloader.Observer {
	return downloader.ObserverFunc(func(p downloader.Progress) {
		if p.Status == downloader.StatusRunning && p.BytesTransferred >= n {
			signal.Pause()
		}
	})
}
