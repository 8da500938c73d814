package cli

import (
	"bytes"
	"context"
	"testing"

	"manual-align/internal/config"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		name    string
		level   log.Level
		logFunc func(*log.Logger)
		wantLog bool
	}{
		{"info at info level", log.InfoLevel, func(l *log.Logger) { l.Info("test") }, true},
		{"debug at info level", log.InfoLevel, func(l *log.Logger) { l.Debug("test") }, false},
		{"debug at debug level", log.DebugLevel, func(l *log.Logger) { l.Debug("test") }, true},
		{"warn at error level", log.ErrorLevel, func(l *log.Logger) { l.Warn("test") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.logFunc(newLogger(&buf, tt.level))
			assert.Equal(t, tt.wantLog, buf.Len() > 0)
		})
	}
}

func TestLogLevel(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, log.InfoLevel, logLevel(cfg, false))
	assert.Equal(t, log.DebugLevel, logLevel(cfg, true))

	cfg.LogLevel = "warn"
	assert.Equal(t, log.WarnLevel, logLevel(cfg, false))

	cfg.LogLevel = "chatty"
	assert.Equal(t, log.InfoLevel, logLevel(cfg, false))
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	newProgress(newLogger(&buf, log.InfoLevel)).done("test completed")
	assert.Contains(t, buf.String(), "test completed")
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	require.NotNil(t, loggerFromContext(ctx))
	assert.Equal(t, config.Default(), configFromContext(ctx))

	var buf bytes.Buffer
	logger := newLogger(&buf, log.InfoLevel)
	cfg := config.Default()
	cfg.Backend = config.BackendOpenCV

	ctx = withConfig(withLogger(ctx, logger), cfg)
	assert.Same(t, logger, loggerFromContext(ctx))
	assert.Equal(t, cfg, configFromContext(ctx))
}
