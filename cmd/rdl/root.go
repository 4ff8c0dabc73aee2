package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/italolelis/resumable_downloader/internal/client"
	"github.com/italolelis/resumable_downloader/internal/config"
	"github.com/italolelis/resumable_downloader/internal/logctx"
	"github.com/italolelis/resumable_downloader/internal/telemetry"
	"github.com/italolelis/resumable_downloader/internal/transfer"
)

var version = "dev"

const telemetryShutdownTimeout = 5 * time.Second

// app carries what every subcommand needs once the root has run.
type app struct {
	cfg     *config.ClientConfig
	logger  *slog.Logger
	client  *client.Client
	fetcher transfer.Fetcher
	tel     *telemetry.Telemetry
}

// Close flushes pending telemetry. It is safe to call when the root never ran.
func (a *app) Close() {
	if a.tel == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer cancel()

	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn("failed to flush telemetry", "err", err)
	}
}

func newRootCmd(a *app) *cobra.Command {
	var (
		server   string
		logLevel string
	)

	rootCmd := &cobra.Command{
		Use:   "rdl",
		Short: "rdl - resumable chunked downloads over HTTP range requests",
		Long: `rdl talks to a resumable_downloader server. It lists and generates files
and downloads them in fixed-size chunks that can be paused and resumed.

Press Ctrl-C once to pause at the next chunk boundary, twice to abort.
Set RDL_TELEMETRY_OTLP_ENDPOINT to push download metrics over OTLP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadClientConfig()
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("server") {
				cfg.ServerURL = server
			}

			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}

			logger := logctx.NewLogger(os.Stderr, cfg.SlogLevel())
			ctx := logctx.WithLogger(cmd.Context(), logger)

			tel, err := newTelemetry(ctx, cfg)
			if err != nil {
				return err
			}

			a.cfg = cfg
			a.logger = logger
			a.tel = tel
			a.client = client.NewClient(cfg.ServerURL)
			a.fetcher = transfer.NewInstrumentedFetcher(a.client, tel)

			cmd.SetContext(ctx)

			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&server, "server", "", "server base URL (default $RDL_SERVER_URL or http://localhost:3000)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: DEBUG, INFO, WARN or ERROR")

	rootCmd.AddCommand(
		newListCmd(a),
		newInfoCmd(a),
		newGenerateCmd(a),
		newGetCmd(a),
	)

	return rootCmd
}

// newTelemetry enables instruments only when there is somewhere to push them.
func newTelemetry(ctx context.Context, cfg *config.ClientConfig) (*telemetry.Telemetry, error) {
	return telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.OTLPEndpoint != "",
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
		OTLPInterval:   cfg.Telemetry.OTLPInterval,
	})
}
