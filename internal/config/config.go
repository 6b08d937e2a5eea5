package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mohammadpnp/product-import/internal/domain/catalog"
)

var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

type Config struct {
	DatabaseURL string
	Port        string
	UploadLimit string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	BaseDir        string
	Mode           catalog.ImportMode
	ChunkSize      int
	ReportEvery    int
	Workers        int
	MaxAttempts    int
	RetryBase      time.Duration
	AttemptTimeout time.Duration
	LeaseDuration  time.Duration

	ProgressTTL     time.Duration
	ProgressPoll    time.Duration
	ProgressPublish bool

	Debug    bool
	LogHuman bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("IMPORT_UPLOAD_LIMIT", "512M")
	v.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("IMPORT_BASE_DIR", ".")
	v.SetDefault("IMPORT_MODE", string(catalog.ModeStaged))
	v.SetDefault("IMPORT_CHUNK_SIZE", 50000)
	v.SetDefault("IMPORT_REPORT_EVERY", 5000)
	v.SetDefault("IMPORT_WORKERS", 4)
	v.SetDefault("IMPORT_MAX_ATTEMPTS", 3)
	v.SetDefault("IMPORT_RETRY_BASE_SECONDS", 5)
	v.SetDefault("IMPORT_ATTEMPT_TIMEOUT_SECONDS", 600)
	v.SetDefault("IMPORT_JOB_LEASE_SECONDS", 60)
	v.SetDefault("PROGRESS_TTL_HOURS", 24)
	v.SetDefault("PROGRESS_POLL_MS", 500)
	v.SetDefault("PROGRESS_PUBLISH", true)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_HUMAN", false)
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		DatabaseURL:     strings.TrimSpace(v.GetString("DATABASE_URL")),
		Port:            v.GetString("PORT"),
		UploadLimit:     v.GetString("IMPORT_UPLOAD_LIMIT"),
		RedisAddr:       v.GetString("REDIS_ADDR"),
		RedisPassword:   v.GetString("REDIS_PASSWORD"),
		RedisDB:         v.GetInt("REDIS_DB"),
		BaseDir:         v.GetString("IMPORT_BASE_DIR"),
		ChunkSize:       positiveOr(v.GetInt("IMPORT_CHUNK_SIZE"), 50000),
		ReportEvery:     positiveOr(v.GetInt("IMPORT_REPORT_EVERY"), 5000),
		Workers:         clampWorkers(v.GetInt("IMPORT_WORKERS")),
		MaxAttempts:     positiveOr(v.GetInt("IMPORT_MAX_ATTEMPTS"), 3),
		RetryBase:       time.Duration(positiveOr(v.GetInt("IMPORT_RETRY_BASE_SECONDS"), 5)) * time.Second,
		AttemptTimeout:  time.Duration(positiveOr(v.GetInt("IMPORT_ATTEMPT_TIMEOUT_SECONDS"), 600)) * time.Second,
		LeaseDuration:   time.Duration(positiveOr(v.GetInt("IMPORT_JOB_LEASE_SECONDS"), 60)) * time.Second,
		ProgressTTL:     time.Duration(positiveOr(v.GetInt("PROGRESS_TTL_HOURS"), 24)) * time.Hour,
		ProgressPoll:    time.Duration(positiveOr(v.GetInt("PROGRESS_POLL_MS"), 500)) * time.Millisecond,
		ProgressPublish: v.GetBool("PROGRESS_PUBLISH"),
		Debug:           strings.EqualFold(v.GetString("LOG_LEVEL"), "debug"),
		LogHuman:        v.GetBool("LOG_HUMAN"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, ErrMissingDatabaseURL
	}

	mode, ok := catalog.ParseImportMode(strings.ToLower(v.GetString("IMPORT_MODE")))
	if !ok {
		mode = catalog.ModeStaged
	}
	cfg.Mode = mode

	return cfg, nil
}

func clampWorkers(workers int) int {
	if workers <= 0 {
		return 4
	}
	if workers > 10 {
		return 10
	}
	return workers
}

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}
