package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/soundrift/drivecache/internal/catalog"
	"github.com/soundrift/drivecache/internal/catalog/jsonfile"
	"github.com/soundrift/drivecache/internal/catalog/sqlite"
	"github.com/soundrift/drivecache/internal/config"
	"github.com/soundrift/drivecache/internal/engine"
	"github.com/soundrift/drivecache/internal/http/rest"
	"github.com/soundrift/drivecache/internal/logctx"
	"github.com/soundrift/drivecache/internal/offline"
	"github.com/soundrift/drivecache/internal/provider"
	"github.com/soundrift/drivecache/internal/provider/googledrive"
	"github.com/soundrift/drivecache/internal/provider/onedrive"
	"github.com/soundrift/drivecache/internal/reconcile"
	"github.com/soundrift/drivecache/internal/scheduler"
	"github.com/soundrift/drivecache/internal/tasks"
	"github.com/soundrift/drivecache/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("drivecache starting...", "log_level", cfg.LogLevel, "cache_dir", cfg.CacheDir)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
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
		ServiceVersion: cfg.Telemetry.ServiceVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	// =========================================================================
	// Start Manifest Store
	store, closeStore, err := buildStore(cfg, tel)
	if err != nil {
		return fmt.Errorf("failed to build manifest store: %w", err)
	}
	defer closeStore()

	// =========================================================================
	// Start Reconciler
	reconciler := reconcile.New(store, tel)

	files, err := reconciler.VerifyAll(ctx)
	if err != nil {
		return fmt.Errorf("startup reconciliation failed: %w", err)
	}

	logger.Info("manifest reconciled", "cached_files", len(files))

	// =========================================================================
	// Start Cache Manager
	registry := tasks.NewRegistry()
	eng := engine.New(store, registry, cfg.CacheDir, cfg.CompletedTaskTTL, cfg.FailedTaskTTL, tel)
	sched := scheduler.New(store, eng, registry, cfg.MaxParallel, tel)
	manager := offline.NewManager(store, reconciler, eng, sched, registry)

	// =========================================================================
	// Start Drive Clients
	drives := buildDrives(cfg)

	for source := range drives {
		logger.Info("drive client configured", "source", string(source))
	}

	// =========================================================================
	// Start API Service

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	server := setupServer(ctx, manager, drives, tel, cfg)

	go func() {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// =========================================================================
	// Start Main Loop
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	}
}

// This is an abstract factory for the manifest store backend.
func buildStore(cfg *config.Config, tel *telemetry.Telemetry) (catalog.Store, func(), error) {
	switch cfg.ManifestBackend {
	case "json":
		return catalog.NewInstrumentedStore(jsonfile.NewStore(cfg.ManifestPath), tel), func() {}, nil
	case "sqlite":
		db, err := sqlite.InitDB(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("DB error: %w", err)
		}

		return catalog.NewInstrumentedStore(sqlite.NewStore(db), tel), func() { db.Close() }, nil
	}

	return nil, nil, fmt.Errorf("invalid manifest backend: %s", cfg.ManifestBackend)
}

func buildDrives(cfg *config.Config) map[catalog.Source]provider.Drive {
	drives := make(map[catalog.Source]provider.Drive)

	if cfg.GoogleDriveToken != "" {
		drives[catalog.SourceGoogleDrive] = googledrive.NewClient(cfg.GoogleDriveToken)
	}

	if cfg.OneDriveToken != "" {
		drives[catalog.SourceOneDrive] = onedrive.NewClient(cfg.OneDriveToken)
	}

	return drives
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(
	ctx context.Context,
	manager *offline.Manager,
	drives map[catalog.Source]provider.Drive,
	tel *telemetry.Telemetry,
	cfg *config.Config,
) *http.Server {
	handler := rest.NewHandler(cfg.Web.Username, cfg.Web.Password, manager, drives, tel, cfg.BatchConcurrency)

	r := chi.NewRouter()
	r.Mount("/", handler.Routes())
	r.Method(http.MethodGet, "/metrics", tel.Handler())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(r, "drivecache"),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
