package logger_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/phrazzld/genflow/internal/config"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		want  slog.Level
		known bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"Warn", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := logger.ParseLevel(tc.name)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.known, ok)
		})
	}
}

func TestNew_FiltersByLevel(t *testing.T) {
	buf := &logger.TestLogBuffer{}
	l := logger.New(buf, config.ServerConfig{LogLevel: "warn", LogFormat: "json"})

	l.Info("hidden")
	l.Warn("shown", "component", "test")

	entries := buf.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "shown", entries[0]["msg"])
	assert.Equal(t, "test", entries[0]["component"])
}

func TestNew_InvalidLevelWarns(t *testing.T) {
	buf := &logger.TestLogBuffer{}
	l := logger.New(buf, config.ServerConfig{LogLevel: "loud", LogFormat: "json"})

	assert.True(t, buf.HasMessage("invalid log level configured, using default level"))
	l.Debug("not shown")
	assert.False(t, buf.HasMessage("not shown"))
}

func TestNew_TextFormat(t *testing.T) {
	buf := &logger.TestLogBuffer{}
	l := logger.New(buf, config.ServerConfig{LogLevel: "info", LogFormat: "text"})

	l.Info("hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Empty(t, buf.Entries())
}

func TestContextLogger(t *testing.T) {
	l, buf := logger.NewTestLogger()
	ctx := logger.WithLogger(context.Background(), l)

	logger.FromContext(ctx).Info("from context")
	assert.True(t, buf.HasMessage("from context"))

	assert.Equal(t, slog.Default(), logger.FromContext(context.Background()))

	fallback, fbBuf := logger.NewTestLogger()
	logger.FromContextOrDefault(context.Background(), fallback).Info("fallback")
	assert.True(t, fbBuf.HasMessage("fallback"))

	logger.FromContextOrDefault(ctx, fallback).Info("preferred")
	assert.True(t, buf.HasMessage("preferred"))
	assert.False(t, fbBuf.HasMessage("preferred"))

	assert.Equal(t, slog.Default(), logger.FromContextOrDefault(context.Background(), nil))
}
