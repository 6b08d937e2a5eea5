package bootstrap

import (
	"path/filepath"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"

	app "github.com/mohammadpnp/product-import/internal/application/importer"
	"github.com/mohammadpnp/product-import/internal/config"
	"github.com/mohammadpnp/product-import/internal/infrastructure/csvsource"
	infrafile "github.com/mohammadpnp/product-import/internal/infrastructure/file"
	"github.com/mohammadpnp/product-import/internal/infrastructure/progress"
	"github.com/mohammadpnp/product-import/internal/infrastructure/repository"
)

// NewImportWorker assembles the queue consumer that runs every import phase.
func NewImportWorker(cfg config.Config, db *gorm.DB, pool *pgxpool.Pool, rdb *redis.Client) (*app.ImportWorker, error) {
	workDir, err := filepath.Abs(filepath.Join(cfg.BaseDir, "chunks"))
	if err != nil {
		return nil, err
	}

	taskQueue := repository.NewTaskQueueRepository(db)
	bulk := repository.NewProductBulkRepository(pool)

	orchestrator := app.NewOrchestrator(app.OrchestratorDeps{
		Jobs:     repository.NewImportJobRepository(db),
		Queue:    taskQueue,
		Progress: progress.NewRedisStore(rdb, cfg.ProgressTTL, cfg.ProgressPublish),
		Source:   infrafile.NewLocalSource(cfg.BaseDir),
		Parser:   csvsource.Format{},
		Splitter: csvsource.NewSplitter(cfg.ChunkSize),
		Staging:  bulk,
		Chunks:   bulk,
	}, app.OrchestratorConfig{
		WorkDir:     workDir,
		ReportEvery: cfg.ReportEvery,
		MaxAttempts: cfg.MaxAttempts,
	})

	return app.NewImportWorker(taskQueue, orchestrator, app.ImportWorkerConfig{
		Workers:        cfg.Workers,
		LeaseDuration:  cfg.LeaseDuration,
		AttemptTimeout: cfg.AttemptTimeout,
		RetryBase:      cfg.RetryBase,
	}), nil
}
