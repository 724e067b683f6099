package cli

import (
	"fmt"
	"os"

	"github.com/harun/radbridge/internal/config"
	"github.com/harun/radbridge/pkg/llm"
	"github.com/spf13/cobra"
)

var (
	configureForce    bool
	configurePort     int
	configureSecret   string
	configureProvider string
	configureModel    string
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write a configuration file",
	Long: `Write a configuration file with default values.
Flags override individual settings. Setting --provider and --model also
enables the agent that serve starts on launch.`,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().BoolVar(&configureForce, "force", false, "overwrite an existing config file")
	configureCmd.Flags().IntVar(&configurePort, "port", 0, "gateway port")
	configureCmd.Flags().StringVar(&configureSecret, "shared-secret", "", "gateway shared secret")
	configureCmd.Flags().StringVar(&configureProvider, "provider", "", "model provider for the startup agent")
	configureCmd.Flags().StringVar(&configureModel, "model", "", "model name for the startup agent")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	configPath := loader.GetConfigPath()

	if _, err := os.Stat(configPath); err == nil && !configureForce {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", configPath)
	}

	cfg := config.DefaultConfig()
	if configurePort != 0 {
		cfg.Gateway.Port = configurePort
	}
	cfg.Gateway.SharedSecret = configureSecret
	if configureProvider != "" || configureModel != "" {
		provider, err := llm.ParseProvider(configureProvider)
		if err != nil {
			return err
		}
		cfg.Agent.Enabled = true
		cfg.Agent.Model = llm.Config{Provider: provider, Model: configureModel}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration saved to: %s\n", configPath)
	fmt.Fprintln(out, "Start radbridge with: radbridge serve")
	return nil
}
