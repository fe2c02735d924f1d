package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AngelCh415/campaign-etl/internal/archive"
	"github.com/AngelCh415/campaign-etl/internal/cache"
	"github.com/AngelCh415/campaign-etl/internal/config"
	"github.com/AngelCh415/campaign-etl/internal/httpx"
	"github.com/AngelCh415/campaign-etl/internal/ingest"
	"github.com/AngelCh415/campaign-etl/internal/metrics"
	"github.com/AngelCh415/campaign-etl/internal/store"
	"github.com/AngelCh415/campaign-etl/internal/telemetry"
	"github.com/AngelCh415/campaign-etl/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", slog.String("err", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	rec := telemetry.New()
	retry := utils.NewBackoff(500*time.Millisecond, cfg.Database.ConnectRetries)

	repo, closeRepo, err := openRepository(ctx, cfg, logger, retry)
	if err != nil {
		return err
	}
	defer closeRepo.Close()

	etlOpts := []ingest.Option{ingest.WithTelemetry(rec)}
	svcOpts := []metrics.Option{metrics.WithTelemetry(rec), metrics.WithLogger(logger)}

	if cfg.Redis.URL != "" {
		var rc *cache.ReportCache
		err := retry.Do(ctx, func(ctx context.Context, attempt int) error {
			client, err := cache.Dial(ctx, cfg.Redis.URL)
			if err != nil {
				logger.Warn("redis not reachable", slog.Int("attempt", attempt), slog.String("err", err.Error()))
				return err
			}
			rc = cache.New(client, cfg.Redis.CacheTTL)
			return nil
		})
		if err != nil {
			// reports still work uncached
			logger.Error("report cache disabled", slog.String("err", err.Error()))
		} else {
			etlOpts = append(etlOpts, ingest.WithCache(rc))
			svcOpts = append(svcOpts, metrics.WithCache(rc))
			logger.Info("report cache enabled", slog.Duration("ttl", cfg.Redis.CacheTTL))
		}
	}

	if cfg.Archive.Bucket != "" {
		client, err := archive.NewS3Client(ctx, cfg.Archive.Region, cfg.Archive.Endpoint)
		if err != nil {
			return err
		}
		etlOpts = append(etlOpts, ingest.WithArchiver(archive.NewS3Archiver(client, cfg.Archive.Bucket, cfg.Archive.Prefix)))
		logger.Info("upload archive enabled", slog.String("bucket", cfg.Archive.Bucket))
	}

	etl := ingest.NewETL(repo, logger, etlOpts...)
	mSvc := metrics.NewService(repo, svcOpts...)

	r := httpx.NewRouter(logger, etl, mSvc, httpx.Options{
		CORSOrigins:    cfg.CORSOrigins,
		MaxUploadBytes: cfg.MaxUploadMB << 20,
		TempDir:        cfg.UploadTempDir,
		Telemetry:      rec,
		Ready:          repo.Ping,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.HTTPTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("port", cfg.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openRepository picks PostgreSQL when a DATABASE_URL is configured and the
// in-memory store otherwise.
func openRepository(ctx context.Context, cfg config.Config, logger *slog.Logger, retry utils.Backoff) (store.Repository, io.Closer, error) {
	if cfg.Database.URL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		return store.NewMemoryStore(), io.NopCloser(nil), nil
	}
	db, err := store.Open(cfg.Database.URL, cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, nil, err
	}
	pg := store.NewPostgresStore(db)
	err = retry.Do(ctx, func(ctx context.Context, attempt int) error {
		if err := pg.Ping(ctx); err != nil {
			logger.Warn("database not reachable", slog.Int("attempt", attempt), slog.String("err", err.Error()))
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	logger.Info("using postgres store")
	return pg, db, nil
}
