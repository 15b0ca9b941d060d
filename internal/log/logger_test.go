package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		env   string
		level string
		want  zapcore.Level
	}{
		{"dev", "", zap.DebugLevel},
		{"prod", "", zap.InfoLevel},
		{"prod", "warn", zap.WarnLevel},
		{"dev", "error", zap.ErrorLevel},
	}
	for _, tt := range tests {
		logger, err := NewLogger(tt.env, tt.level)
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(tt.want), "%s/%s", tt.env, tt.level)
		if tt.want > zap.DebugLevel {
			assert.False(t, logger.Core().Enabled(tt.want-1), "%s/%s", tt.env, tt.level)
		}
	}

	_, err := NewLogger("dev", "loud")
	assert.Error(t, err)
}

func TestKVLogFunc(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	fn := KVLogFunc(zap.New(core).Sugar())

	fn("reaped expired records", "table", "kv", "shared", false)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.DebugLevel, entries[0].Level)
	assert.Equal(t, "reaped expired records", entries[0].Message)
	assert.Equal(t, "kv", entries[0].ContextMap()["table"])

	assert.Nil(t, KVLogFunc(nil))
}
