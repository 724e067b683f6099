package cli

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	stopTimeout int
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running radbridge",
	Long: `Stop a running radbridge gracefully.
Sends SIGTERM so the gateway drains in-flight requests and the agent server
shuts down, then waits. SIGKILL is sent once the timeout passes.`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().IntVar(&stopTimeout, "timeout", 30, "timeout in seconds to wait for radbridge to stop")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	pidFile := pidFilePath(cfg.DataDir)
	if !isRunning(pidFile) {
		os.Remove(pidFile)
		fmt.Fprintln(out, "radbridge is not running")
		return nil
	}

	if err := signalProcess(pidFile, syscall.SIGTERM); err != nil {
		return err
	}

	if waitForExit(pidFile, time.Duration(stopTimeout)*time.Second) {
		os.Remove(pidFile)
		fmt.Fprintln(out, "radbridge stopped")
		return nil
	}

	fmt.Fprintln(out, "Timeout reached, sending SIGKILL...")
	if err := signalProcess(pidFile, syscall.SIGKILL); err != nil {
		return err
	}
	os.Remove(pidFile)
	fmt.Fprintln(out, "radbridge killed")
	return nil
}

// waitForExit polls until the process is gone or timeout passes
func waitForExit(pidFile string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !isRunning(pidFile) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return !isRunning(pidFile)
}
