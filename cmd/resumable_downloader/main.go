package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/italolelis/resumable_downloader/internal/cleanup"
	"github.com/italolelis/resumable_downloader/internal/config"
	"github.com/italolelis/resumable_downloader/internal/content"
	"github.com/italolelis/resumable_downloader/internal/http/rest"
	"github.com/italolelis/resumable_downloader/internal/logctx"
	"github.com/italolelis/resumable_downloader/internal/notifier"
	"github.com/italolelis/resumable_downloader/internal/storage/sqlite"
	"github.com/italolelis/resumable_downloader/internal/telemetry"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := logctx.NewLogger(os.Stdout, cfg.SlogLevel())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("resumable downloader starting...", "log_level", cfg.LogLevel, "version", version)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
		OTLPInterval:   cfg.Telemetry.OTLPInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	repo := sqlite.NewInstrumentedFileRepository(database, tel)

	// =========================================================================
	// Start Content Store
	store, err := content.NewStore(cfg.FilesDir, repo, cfg.MaxGenerateSize, tel)
	if err != nil {
		return fmt.Errorf("failed to open content store: %w", err)
	}

	report, err := store.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("failed to reconcile content store: %w", err)
	}

	logger.Info("content store ready",
		"files_dir", cfg.FilesDir,
		"stale_removed", report.StaleRemoved,
		"rows_dropped", report.RowsDropped,
		"registered", report.Registered,
	)

	// =========================================================================
	// Start Notification
	var notif notifier.Notifier = notifier.Nop{}
	if cfg.DiscordWebhookURL != "" {
		notif = notifier.NewDiscordNotifier(cfg.DiscordWebhookURL)
	}

	// =========================================================================
	// Start Cleanup
	setupCleanup(ctx, repo, store, tel, notif, cfg)

	// =========================================================================
	// Start API Service

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	server := setupServer(ctx, store, tel, cfg)

	go func() {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion. ctx is already
		// done, so the deadline hangs off a fresh context.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return ctx.Err()
	}
}

// setupServer prepares the handlers and middleware of the http rest server.
func setupServer(ctx context.Context, store *content.Store, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	filesHandler := rest.NewFilesHandler(store, cfg.DefaultSizeMB, tel)

	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)
	r.Use(telemetry.HTTPLogging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Web.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Range", "Content-Type", telemetry.RequestIDHeader},
		ExposedHeaders: []string{
			"Accept-Ranges",
			"Content-Length",
			"Content-Range",
			rest.HashHeader,
			telemetry.RequestIDHeader,
		},
		MaxAge: 300,
	}))

	r.Get("/healthz", rest.HandleHealth)
	r.Method(http.MethodGet, "/metrics", tel.Handler())
	r.Mount("/", filesHandler.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext:  requestContext(ctx),
	}
}

// requestContext keeps the values of ctx (logger) but not its cancellation,
// so Shutdown drains in-flight range streams instead of cutting them.
func requestContext(ctx context.Context) func(net.Listener) context.Context {
	base := context.WithoutCancel(ctx)

	return func(net.Listener) context.Context {
		return base
	}
}

func setupCleanup(
	ctx context.Context,
	catalog cleanup.Catalog,
	store cleanup.Deleter,
	tel *telemetry.Telemetry,
	notif notifier.Notifier,
	cfg *config.Config,
) {
	logger := logctx.LoggerFromContext(ctx)

	if cfg.KeepGeneratedFor <= 0 {
		logger.Info("retention disabled, generated files are kept forever")

		return
	}

	go func() {
		cleanupTicker := time.NewTicker(cfg.CleanupInterval)
		defer cleanupTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("cleanup goroutine shutting down.")

				return
			case now := <-cleanupTicker.C:
				deleted, err := cleanup.DeleteExpiredFiles(ctx, catalog, store, cfg.KeepGeneratedFor, now)
				if err != nil {
					logger.Error("failed to delete expired files", "err", err)
					tel.RecordSystemError("cleanup", "delete_failed")
				}

				for _, rec := range deleted {
					tel.RecordExpiredFile(ctx)

					if notifyErr := notif.Notify(ctx, "🗑️ Expired file removed: "+rec.Name); notifyErr != nil {
						logger.Error("failed to send notification", "file_name", rec.Name, "err", notifyErr)
					}
				}
			}
		}
	}()
}
