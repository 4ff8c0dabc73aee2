package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/italolelis/resumable_downloader/internal/downloader"
	"github.com/italolelis/resumable_downloader/internal/logctx"
	"github.com/italolelis/resumable_downloader/internal/notifier"
)

type getFlags struct {
	out        string
	chunkSize  string
	timeout    time.Duration
	retries    uint
	parallel   int
	pauseAfter string
	noProgress bool
}

func newGetCmd(a *app) *cobra.Command {
	var flags getFlags

	cmd := &cobra.Command{
		Use:   "get <name>...",
		Short: "Download files in resumable chunks",
		Long: `Download one or more files in fixed-size chunks, verifying each against the
SHA-256 reported by the server. Data is written to <out>/<name>.part and moved
to <out>/<name> only after verification.

Ctrl-C pauses every download at the next chunk boundary. --pause-after pauses
once that many bytes are committed and resumes right away, which shows the
resume path against a live server.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, a, &flags, args)
		},
	}

	cmd.Flags().StringVarP(&flags.out, "out", "o", ".", "directory to write files into")
	cmd.Flags().StringVar(&flags.chunkSize, "chunk-size", "", "bytes per range request, e.g. 1MiB (default $RDL_CHUNK_SIZE)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "timeout of a single chunk fetch (default $RDL_FETCH_TIMEOUT)")
	cmd.Flags().UintVar(&flags.retries, "retries", 3, "retries per file after a failed attempt")
	cmd.Flags().IntVar(&flags.parallel, "parallel", 0, "files downloaded at once (default $RDL_MAX_PARALLEL)")
	cmd.Flags().StringVar(&flags.pauseAfter, "pause-after", "", "pause once this many bytes are committed, then resume")
	cmd.Flags().BoolVar(&flags.noProgress, "no-progress", false, "disable progress bars")

	return cmd
}

func runGet(cmd *cobra.Command, a *app, flags *getFlags, names []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	logger := logctx.LoggerFromContext(ctx)

	chunkSize := a.cfg.ChunkSize
	if flags.chunkSize != "" {
		n, err := humanize.ParseBytes(flags.chunkSize)
		if err != nil || n == 0 {
			return fmt.Errorf("invalid --chunk-size %q", flags.chunkSize)
		}

		chunkSize = int64(n)
	}

	var checkpoint int64

	if flags.pauseAfter != "" {
		n, err := humanize.ParseBytes(flags.pauseAfter)
		if err != nil || n == 0 {
			return fmt.Errorf("invalid --pause-after %q", flags.pauseAfter)
		}

		checkpoint = int64(n)
	}

	timeout := a.cfg.FetchTimeout
	if flags.timeout > 0 {
		timeout = flags.timeout
	}

	parallel := a.cfg.MaxParallel
	if flags.parallel > 0 {
		parallel = flags.parallel
	}

	var notif notifier.Notifier = notifier.Nop{}
	if a.cfg.DiscordWebhookURL != "" {
		notif = notifier.NewDiscordNotifier(a.cfg.DiscordWebhookURL)
	}

	dl := downloader.NewDownloader(a.fetcher, chunkSize, timeout, parallel, a.tel)

	// The first interrupt pauses whatever phase is running, the second
	// aborts the in-flight fetches.
	var pauses pauseSet

	first := pauses.next(len(names))

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	defer signal.Stop(sigCh)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigCh:
				if !pauses.interrupt() {
					logger.Warn("second interrupt, aborting")
					cancel()

					return
				}

				fmt.Fprintln(cmd.ErrOrStderr(), "\npausing at the next chunk boundary, press Ctrl-C again to abort")
			}
		}
	}()

	sinks := make([]*downloader.FileSink, len(names))
	requests := make([]downloader.Request, len(names))

	for i, name := range names {
		sink, err := downloader.NewFileSink(filepath.Join(flags.out, name))
		if err != nil {
			discardAll(sinks[:i])

			return err
		}

		sinks[i] = sink

		observers := []downloader.Observer{notifier.SessionObserver(ctx, notif)}
		if !flags.noProgress {
			observers = append(observers, newProgressObserver(cmd.ErrOrStderr()))
		}

		if checkpoint > 0 {
			observers = append(observers, pauseAfter(checkpoint, first[i]))
		}

		requests[i] = downloader.Request{Name: name, Sink: sink, Observers: observers, Pause: first[i]}
	}

	results, _ := dl.DownloadAll(ctx, requests, nil)

	// Swap in the resume signals before looking at the flag, so an interrupt
	// landing in between still reaches them.
	resume := pauses.next(len(results))

	if !pauses.Interrupted() {
		var g errgroup.Group
		g.SetLimit(parallel)

		for i := range results {
			res := &results[i]
			if res.Session == nil {
				continue
			}

			if res.Session.Status() == downloader.StatusPaused {
				logger.Info("resuming download",
					"file_name", res.Name,
					"committed_offset", res.Session.CommittedOffset())
			}

			g.Go(func() error {
				res.Err = runWithRetry(ctx, res.Session, resume[i], flags.retries)

				return nil
			})
		}

		_ = g.Wait()
	}

	return report(cmd, results, sinks)
}

// report prints one line per file and cleans up the partial files of every
// download that did not complete.
func report(cmd *cobra.Command, results []downloader.Result, sinks []*downloader.FileSink) error {
	var errs []error

	for i, res := range results {
		sink := sinks[i]

		if res.Session != nil && res.Session.Status() == downloader.StatusCompleted {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: completed (%s) -> %s\n",
				res.Name, humanize.IBytes(uint64(res.Session.TotalSize())), sink.Path())

			continue
		}

		if err := sink.Discard(); err != nil {
			errs = append(errs, fmt.Errorf("%s: failed to remove partial file: %w", res.Name, err))
		}

		switch {
		case errors.Is(res.Err, downloader.ErrPaused):
			p := res.Session.Progress()
			fmt.Fprintf(cmd.OutOrStdout(), "%s: paused at %s of %s (%.1f%%), partial data discarded\n",
				res.Name,
				humanize.IBytes(uint64(p.BytesTransferred)),
				humanize.IBytes(uint64(p.TotalSize)),
				p.Percent)

			errs = append(errs, fmt.Errorf("%s: %w", res.Name, res.Err))
		case res.Err != nil:
			fmt.Fprintf(cmd.OutOrStdout(), "%s: failed: %v\n", res.Name, res.Err)

			errs = append(errs, fmt.Errorf("%s: %w", res.Name, res.Err))
		}
	}

	return errors.Join(errs...)
}

func discardAll(sinks []*downloader.FileSink) {
	for _, s := range sinks {
		_ = s.Discard()
	}
}
