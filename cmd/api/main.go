package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mohammadpnp/product-import/internal/bootstrap"
	"github.com/mohammadpnp/product-import/internal/config"
	"github.com/mohammadpnp/product-import/internal/infrastructure/db"
	"github.com/mohammadpnp/product-import/internal/infrastructure/progress"
	"github.com/mohammadpnp/product-import/internal/logctx"
)

func main() {
	cfg, err := config.Load()
	logger := logctx.NewConfiguredLogger(cfg.Debug, cfg.LogHuman)
	logctx.SetDefaultLogger(logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	rootCtx := logctx.WithLogger(context.Background(), logger)

	gormLogLevel := gormlogger.Warn
	if cfg.Debug {
		gormLogLevel = gormlogger.Info
	}
	gdb, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	if err := db.EnsureSchema(rootCtx, gdb); err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare schema")
	}
	if sqlDB, err := gdb.DB(); err == nil {
		defer sqlDB.Close()
	}

	pool, err := pgxpool.New(rootCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create pgx pool")
	}
	defer pool.Close()

	rdb, err := progress.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()

	server := bootstrap.NewHTTPServer(cfg, gdb, rdb, logger)
	worker, err := bootstrap.NewImportWorker(cfg, gdb, pool, rdb)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build import worker")
	}

	workerCtx, stopWorkers := context.WithCancel(rootCtx)
	defer stopWorkers()

	workersDone := make(chan error, 1)
	go func() { workersDone <- worker.Run(workerCtx) }()

	go func() {
		logger.Info().Str("port", cfg.Port).Str("mode", string(cfg.Mode)).Msg("server starting")
		if err := server.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	stopWorkers()
	select {
	case <-workersDone:
	case <-ctx.Done():
		logger.Warn().Msg("workers did not stop in time; leased tasks will be reclaimed")
	}
}
