package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		output, err := executeCommand(t, "stop", "--help")
		require.NoError(t, err)
		assert.Contains(t, output, "Stop a running radbridge")
		assert.Contains(t, output, "timeout")
	})

	t.Run("not running removes stale pid file", func(t *testing.T) {
		path, dataDir := writeConfig(t, "")
		pidFile := pidFilePath(dataDir)
		require.NoError(t, os.WriteFile(pidFile, []byte("not-a-pid"), 0o644))

		output, err := executeCommand(t, "stop", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, output, "radbridge is not running")
		assert.NoFileExists(t, filepath.Join(dataDir, "radbridge.pid"))
	})
}
