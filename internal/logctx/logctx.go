// Package logctx carries a zerolog logger through context.Context so that
// workers and phase handlers log with the job and task fields their callers
// attached.
package logctx

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type loggerKey struct{}

var (
	defaultLogger     zerolog.Logger
	defaultLoggerOnce sync.Once
)

func initDefaultLogger() {
	defaultLoggerOnce.Do(func() {
		defaultLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	})
}

// DefaultLogger returns the logger used when a context carries none.
func DefaultLogger() zerolog.Logger {
	initDefaultLogger()
	return defaultLogger
}

// SetDefaultLogger replaces the fallback logger. Call it from main before any
// goroutine logs.
func SetDefaultLogger(l zerolog.Logger) {
	initDefaultLogger()
	defaultLogger = l
}

func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext never returns nil. The result is a copy, so callers may chain
// level methods on it directly.
func FromContext(ctx context.Context) *zerolog.Logger {
	logger := DefaultLogger()
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
			logger = l
		}
	}
	return &logger
}

func WithStr(ctx context.Context, key, value string) context.Context {
	logger := FromContext(ctx).With().Str(key, value).Logger()
	return WithLogger(ctx, logger)
}

func WithInt(ctx context.Context, key string, value int) context.Context {
	logger := FromContext(ctx).With().Int(key, value).Logger()
	return WithLogger(ctx, logger)
}

// NewConfiguredLogger builds the process logger. debug lowers the level,
// human switches to a console writer.
func NewConfiguredLogger(debug, human bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	var output zerolog.LevelWriter
	if human {
		output = zerolog.LevelWriterAdapter{Writer: zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}}
	} else {
		output = zerolog.LevelWriterAdapter{Writer: os.Stderr}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}
