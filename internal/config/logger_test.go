package config

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		env   string
		level string
		want  slog.Level
	}{
		{"production", "", slog.LevelInfo},
		{"development", "", slog.LevelDebug},
		{"production", "debug", slog.LevelDebug},
		{"development", "WARN", slog.LevelWarn},
		{"staging", " error ", slog.LevelError},
		{"production", "verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.env+"/"+tt.level, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.env, tt.level))
		})
	}
}

func TestNewLogger_Level(t *testing.T) {
	logger := NewLogger("production", "")
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))

	logger = NewLogger("development", "error")
	assert.False(t, logger.Enabled(context.Background(), slog.LevelWarn))
}
