package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/harun/radbridge/internal/config"
	"github.com/harun/radbridge/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetConfigureFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		configureForce = false
		configurePort = 0
		configureSecret = ""
		configureProvider = ""
		configureModel = ""
	})
}

func TestConfigureCommand(t *testing.T) {
	t.Run("writes defaults", func(t *testing.T) {
		resetConfigureFlags(t)
		path := filepath.Join(t.TempDir(), "radbridge.json")

		output, err := executeCommand(t, "configure", "--config", path, "--port", "9300")
		require.NoError(t, err)
		assert.Contains(t, output, "Configuration saved to: "+path)

		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, 9300, cfg.Gateway.Port)
		assert.False(t, cfg.Agent.Enabled)
	})

	t.Run("refuses to overwrite without force", func(t *testing.T) {
		resetConfigureFlags(t)
		path := filepath.Join(t.TempDir(), "radbridge.json")
		require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))

		_, err := executeCommand(t, "configure", "--config", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")

		_, err = executeCommand(t, "configure", "--config", path, "--force")
		require.NoError(t, err)
	})

	t.Run("enables the startup agent", func(t *testing.T) {
		resetConfigureFlags(t)
		path := filepath.Join(t.TempDir(), "radbridge.json")

		_, err := executeCommand(t, "configure", "--config", path, "--provider", "Anthropic", "--model", "claude-test")
		require.NoError(t, err)

		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.True(t, cfg.Agent.Enabled)
		assert.Equal(t, llm.ProviderAnthropic, cfg.Agent.Model.Provider)
		assert.Equal(t, "claude-test", cfg.Agent.Model.Model)
	})

	t.Run("rejects unknown provider", func(t *testing.T) {
		resetConfigureFlags(t)
		path := filepath.Join(t.TempDir(), "radbridge.json")

		_, err := executeCommand(t, "configure", "--config", path, "--provider", "nope", "--model", "x")
		assert.Error(t, err)
		assert.NoFileExists(t, path)
	})
}
