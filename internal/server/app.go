// Package server wires the application together: configuration, storage
// backends, repositories, services, the HTTP endpoint and the cleanup loop,
// plus graceful shutdown on OS signals.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibana-share/hibana/internal/logging"
	"github.com/hibana-share/hibana/internal/server/config"
	"github.com/hibana-share/hibana/internal/server/httpapi"
	"github.com/hibana-share/hibana/internal/server/repositories/repomanager"
	"github.com/hibana-share/hibana/internal/server/services"
	"github.com/hibana-share/hibana/internal/server/storage"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	repos   repomanager.RepositoryManager
	blobs   storage.BlobStore
	chunks  *storage.ChunkStore
	cleanup *services.CleanupService
	handler *httpapi.Handler
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	repos, err := newRepositoryManager(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("metadata store init: %w", err)
	}

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("blob store init: %w", err)
	}

	chunks, err := storage.NewChunkStore(cfg.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("chunk store init: %w", err)
	}

	uploadSvc := services.NewUploadService(repos, blobs, chunks, cfg, logger)
	accessSvc := services.NewAccessService(repos, blobs, logger)
	cleanupSvc := services.NewCleanupService(repos, blobs, chunks, cfg, logger)

	handler := httpapi.NewHandler(uploadSvc, accessSvc, cleanupSvc, blobs, cfg, logger)

	return &App{
		config:  cfg,
		logger:  logger,
		repos:   repos,
		blobs:   blobs,
		chunks:  chunks,
		cleanup: cleanupSvc,
		handler: handler,
	}, nil
}

func newRepositoryManager(ctx context.Context, cfg *config.Config) (repomanager.RepositoryManager, error) {
	if cfg.DatabaseDSN == "" {
		return repomanager.NewInMemoryRepositoryManager(), nil
	}
	return repomanager.NewPostgresRepositoryManager(ctx, cfg.DatabaseDSN)
}

func newBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	switch cfg.StorageBackend {
	case "s3":
		return storage.NewS3Store(ctx, storage.S3Options{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			BaseEndpoint: cfg.S3BaseEndpoint,
		})
	case "fs", "":
		return storage.NewFilesystemStore(cfg.StorageDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app",
		"addr", app.config.EndpointAddr,
		"storage_backend", app.config.StorageBackend)

	app.initSignalHandler(cancelFunc)

	srv := &http.Server{
		Addr:    app.config.EndpointAddr,
		Handler: httpapi.NewRouter(app.handler),
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error(ctx, "http server failed", "error", err)
			cancelFunc()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.cleanup.Run(ctx)
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(ctx, "http shutdown failed", "error", err)
	}

	wg.Wait()

	if err := app.repos.Close(); err != nil {
		app.logger.Error(ctx, "closing metadata store failed", "error", err)
	}

	app.logger.Info(ctx, "app stopped")
}
