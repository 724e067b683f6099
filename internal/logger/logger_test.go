package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"info":    zerolog.InfoLevel,
		"DEBUG":   zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
	}
	for input, want := range cases {
		got, err := ParseLevel(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	t.Run("rejects unknown level", func(t *testing.T) {
		_, err := New(Config{Level: "verbose"})
		assert.Error(t, err)
	})

	t.Run("writes redacted JSON to file", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "radbridge.log")

		l, err := New(Config{Level: "debug", File: logFile, Redaction: true})
		require.NoError(t, err)

		bridgeLogger := l.Component("bridge")
		bridgeLogger.Info().Str("api_key", "sk-abcdefghijklmnopqrstuvwxyz0123").Msg("model configured")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"component":"bridge"`)
		assert.Contains(t, string(data), "model configured")
		assert.NotContains(t, string(data), "sk-abcdefghijklmnopqrstuvwxyz0123")
	})

	t.Run("filters below level", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "radbridge.log")

		l, err := New(Config{Level: "warn", File: logFile})
		require.NoError(t, err)

		zl := l.Zerolog()
		zl.Info().Msg("quiet")
		zl.Warn().Msg("loud")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "quiet")
		assert.Contains(t, string(data), "loud")
	})

	t.Run("discards without outputs", func(t *testing.T) {
		l, err := New(Config{})
		require.NoError(t, err)
		zl := l.Zerolog()
		zl.Info().Msg("nowhere")
		assert.NoError(t, l.Close())
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Redaction)
}
