package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantumlink/quantumlink/internal/api"
	"github.com/quantumlink/quantumlink/internal/auth"
	"github.com/quantumlink/quantumlink/internal/config"
	"github.com/quantumlink/quantumlink/internal/enrich"
	"github.com/quantumlink/quantumlink/internal/jobs"
	jobspostgres "github.com/quantumlink/quantumlink/internal/jobs/postgres"
	"github.com/quantumlink/quantumlink/internal/migrations"
	"github.com/quantumlink/quantumlink/internal/observability"
	"github.com/quantumlink/quantumlink/internal/query/duckdb"
	"github.com/quantumlink/quantumlink/internal/staging"
	"github.com/quantumlink/quantumlink/internal/storage"
	s3store "github.com/quantumlink/quantumlink/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("quantumlink-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.Error("api server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := duckdb.Open(ctx, duckdb.Config{
		ScratchDir:           cfg.Engine.ScratchDir,
		SpreadsheetExtension: cfg.Engine.SpreadsheetExtension,
		MemoryLimit:          cfg.Engine.MemoryLimit,
		Threads:              cfg.Engine.Threads,
		PreviewDefaultRows:   cfg.Engine.PreviewDefaultRows,
		PreviewMaxRows:       cfg.Engine.PreviewMaxRows,
	}, logger)
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	area, err := staging.New(cfg.Staging.UploadDir, cfg.Staging.ResultDir)
	if err != nil {
		return err
	}

	var jobStore jobs.Store = jobs.NewMemoryStore()
	if cfg.Jobs.DSN != "" {
		jobsDB, err := jobspostgres.Open(ctx, jobspostgres.DBConfig{
			DSN:             cfg.Jobs.DSN,
			MaxOpenConns:    cfg.Jobs.MaxOpenConns,
			MaxIdleConns:    cfg.Jobs.MaxIdleConns,
			ConnMaxIdleTime: cfg.Jobs.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Jobs.ConnMaxLifetime,
		})
		if err != nil {
			return err
		}
		defer func() { _ = jobsDB.Close() }()
		if err := migrations.NewRunner().RequireCurrent(ctx, jobsDB); err != nil {
			return err
		}
		jobStore = jobspostgres.NewRepository(jobsDB)
	} else {
		logger.Warn("jobs_store_in_memory", slog.String("hint", "set QUANTUMLINK_JOBS_DSN to persist job history"))
	}

	var objectStore storage.ObjectStore
	if cfg.ObjectStore.Enabled {
		store, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			return err
		}
		objectStore = store
	}

	service := &enrich.Service{
		Engine:      session,
		Jobs:        jobStore,
		Staging:     area,
		ObjectStore: objectStore,
		Config:      enrich.Config{PresignExpiry: cfg.ObjectStore.PresignExpiry},
		Logger:      logger,
	}

	deps := api.Dependencies{
		Logger:   logger,
		Enricher: service,
		Readiness: api.CombineReadinessChecks(
			service.Ready,
			api.CheckObjectStoreConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			return err
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
		return err
	}
	return nil
}
