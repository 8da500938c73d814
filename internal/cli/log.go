package cli

import (
	"context"
	"io"
	"time"

	"manual-align/internal/config"

	"github.com/charmbracelet/log"
)

// newLogger creates a new logger with timestamp formatting.
// Timestamps are formatted as "HH:MM:SS.ms" (e.g., "14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// logLevel picks the level from the config, with --verbose forcing debug.
func logLevel(cfg config.Config, verbose bool) log.Level {
	if verbose {
		return log.DebugLevel
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// progress logs completion of an operation with its elapsed time.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg along with the elapsed time since progress was created.
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

type ctxKey int

const (
	loggerKey ctxKey = iota
	configKey
)

func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext retrieves the logger from ctx, or log.Default().
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}

func withConfig(ctx context.Context, cfg config.Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// configFromContext retrieves the settings from ctx, or config.Default().
func configFromContext(ctx context.Context) config.Config {
	if cfg, ok := ctx.Value(configKey).(config.Config); ok {
		return cfg
	}
	return config.Default()
}
