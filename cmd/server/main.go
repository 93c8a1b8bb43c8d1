// Package main is the entrypoint for the HabitVault API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nairabhi/habitvault/internal/api"
	"github.com/nairabhi/habitvault/internal/api/handler"
	mw "github.com/nairabhi/habitvault/internal/api/middleware"
	"github.com/nairabhi/habitvault/internal/api/response"
	"github.com/nairabhi/habitvault/internal/archive"
	"github.com/nairabhi/habitvault/internal/cache"
	"github.com/nairabhi/habitvault/internal/config"
	"github.com/nairabhi/habitvault/internal/habitdata"
	"github.com/nairabhi/habitvault/internal/notify"
	"github.com/nairabhi/habitvault/internal/pipeline"
	"github.com/nairabhi/habitvault/internal/storage"
	"github.com/nairabhi/habitvault/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "workers", cfg.Pipeline.Workers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create artifact storage
	objects, err := storage.NewFSClient(cfg.Storage.Dir)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	slog.Info("storage ready", "dir", cfg.Storage.Dir)

	// 6. Create store
	pgStore := store.NewPostgresStore(pool)

	// 7. Build the job pipeline
	var encryptor archive.Encryptor
	if cfg.Pipeline.EncryptKey != "" {
		if encryptor, err = archive.NewAESGCM([]byte(cfg.Pipeline.EncryptKey)); err != nil {
			return fmt.Errorf("create encryptor: %w", err)
		}
	}

	workers := pipeline.NewPool(cfg.Pipeline.Workers, cfg.Pipeline.QueueSize)
	orch := pipeline.New(pipeline.Options{
		Store:     pgStore,
		Cache:     redisCache,
		Storage:   objects,
		Collector: habitdata.NewCollector(pgStore),
		Importer:  habitdata.NewImporter(pgStore),
		Notifier:  notify.NewRedisNotifier(redisCache),
		Pool:      workers,
		Retry: pipeline.RetryPolicy{
			MaxRetries: cfg.Pipeline.MaxRetries,
			Delays:     cfg.Pipeline.RetryDelays,
		},
		StageTimeout: cfg.Pipeline.StageTimeout,
		Encryptor:    encryptor,
	})

	// 8. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: healthHandler(pgStore, redisCache),

		CreateJobHandler:   handler.NewCreateJobHandler(orch),
		ListJobsHandler:    handler.NewListJobsHandler(pgStore),
		GetJobHandler:      handler.NewGetJobHandler(pgStore),
		JobStateHandler:    handler.NewJobStateHandler(redisCache, pgStore),
		CancelJobHandler:   handler.NewCancelJobHandler(orch),
		RetryJobHandler:    handler.NewRetryJobHandler(orch),
		DownloadJobHandler: handler.NewDownloadJobHandler(orch),
		DeleteJobHandler:   handler.NewDeleteJobHandler(orch),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := workers.Shutdown(shutdownCtx); err != nil {
		slog.Warn("worker pool shutdown incomplete, in-flight jobs will resume on restart", "error", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
