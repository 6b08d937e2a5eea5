package bootstrap

import (
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	app "github.com/mohammadpnp/product-import/internal/application/importer"
	"github.com/mohammadpnp/product-import/internal/config"
	infrafile "github.com/mohammadpnp/product-import/internal/infrastructure/file"
	"github.com/mohammadpnp/product-import/internal/infrastructure/progress"
	"github.com/mohammadpnp/product-import/internal/infrastructure/repository"
	httpecho "github.com/mohammadpnp/product-import/internal/interfaces/http/echo"
	"github.com/mohammadpnp/product-import/internal/logctx"
)

func NewHTTPServer(cfg config.Config, db *gorm.DB, rdb *redis.Client, logger zerolog.Logger) *echo.Echo {
	server := echo.New()
	server.HideBanner = true
	server.HidePort = true

	server.Use(middleware.Recover())
	server.Use(middleware.RequestID())
	server.Use(requestLogger(logger))
	server.Use(middleware.BodyLimit(cfg.UploadLimit))

	importJobRepo := repository.NewImportJobRepository(db)
	taskQueue := repository.NewTaskQueueRepository(db)
	progressStore := progress.NewRedisStore(rdb, cfg.ProgressTTL, cfg.ProgressPublish)
	uploads := infrafile.NewLocalSource(cfg.BaseDir)

	importHandler := httpecho.NewImportHandler(
		uploads,
		app.NewStartImport(importJobRepo, taskQueue, progressStore, cfg.Mode, cfg.MaxAttempts),
		app.NewGetImportJob(importJobRepo),
		app.NewCancelImport(importJobRepo, progressStore),
	)
	progressHandler := httpecho.NewProgressHandler(
		progress.NewPoller(progressStore, cfg.ProgressPoll),
		progress.NewSubscriber(rdb, progressStore),
	)

	httpecho.RegisterRoutes(server, importHandler, progressHandler)
	server.Server.RegisterOnShutdown(progressHandler.Close)

	server.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	return server
}

// requestLogger attaches a request-scoped logger to the request context and
// writes one line per request.
func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	attach := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			reqLogger := logger.With().Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).Logger()
			req := c.Request()
			c.SetRequest(req.WithContext(logctx.WithLogger(req.Context(), reqLogger)))
			return next(c)
		}
	}

	logRequests := middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := logctx.FromContext(c.Request().Context()).Info()
			if v.Error != nil {
				event = logctx.FromContext(c.Request().Context()).Error().Err(v.Error)
			}
			event.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return attach(logRequests(next))
	}
}
