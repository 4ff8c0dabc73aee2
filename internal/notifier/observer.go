package notifier

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/italolelis/resumable_downloader/internal/downloader"
	"github.com/italolelis/resumable_downloader/internal/logctx"
)

// SessionObserver sends a notification when a download completes or fails.
// Notification errors are logged and never affect the session.
func SessionObserver(ctx context.Context, n Notifier) downloader.Observer {
	logger := logctx.LoggerFromContext(ctx)

	return downloader.ObserverFunc(func(p downloader.Progress) {
		var content string

		switch p.Status {
		case downloader.StatusCompleted:
			content = fmt.Sprintf("✅ Download finished: %s (%s)", p.Name, humanize.IBytes(uint64(p.TotalSize)))
		case downloader.StatusFailed:
			content = fmt.Sprintf("❌ Download failed: %s at %s of %s: %v",
				p.Name,
				humanize.IBytes(uint64(p.BytesTransferred)),
				humanize.IBytes(uint64(p.TotalSize)),
				p.Err)
		default:
			return
		}

		if err := n.Notify(ctx, content); err != nil {
			logger.Error("failed to send notification", "file_name", p.Name, "err", err)
		}
	})
}
