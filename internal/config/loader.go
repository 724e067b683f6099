package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harun/radbridge/pkg/llm"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes environment overrides, e.g. RADBRIDGE_GATEWAY_PORT
	EnvPrefix = "RADBRIDGE"

	defaultDirName  = ".radbridge"
	defaultFileName = "radbridge.json"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader; an empty path selects
// $HOME/.radbridge/radbridge.json
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load reads the config file when it exists, applies RADBRIDGE_*
// environment overrides on top and fills in default paths
func (l *Loader) Load() (*Config, error) {
	configPath, err := l.path()
	if err != nil {
		return nil, err
	}

	v := newViper(configPath)
	for key, value := range settings(DefaultConfig()) {
		v.SetDefault(key, value)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Agent.Model.Provider != "" {
		if p, err := llm.ParseProvider(string(cfg.Agent.Model.Provider)); err == nil {
			cfg.Agent.Model.Provider = p
		}
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, defaultDirName)
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "radbridge.log")
	}
	if cfg.Logging.AuditFile == "" {
		cfg.Logging.AuditFile = filepath.Join(cfg.DataDir, "audit.log")
	}

	return cfg, nil
}

// Save writes cfg as JSON, creating the directory
func (l *Loader) Save(cfg *Config) error {
	configPath, err := l.path()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := newViper(configPath)
	for key, value := range settings(cfg) {
		v.Set(key, value)
	}

	if err := v.WriteConfig(); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to write config file: %w", err)
		}
		if err := v.SafeWriteConfig(); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}
	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	path, err := l.path()
	if err != nil {
		return ""
	}
	return path
}

func (l *Loader) path() (string, error) {
	if l.configPath != "" {
		return l.configPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, defaultDirName, defaultFileName), nil
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// settings flattens cfg into viper keys. Durations are written as strings
// such as "30s" so saved files stay readable.
func settings(cfg *Config) map[string]interface{} {
	s := map[string]interface{}{
		"data_dir": cfg.DataDir,

		"gateway.host":                cfg.Gateway.Host,
		"gateway.port":                cfg.Gateway.Port,
		"gateway.shared_secret":       cfg.Gateway.SharedSecret,
		"gateway.tick_interval":       duration(cfg.Gateway.TickInterval),
		"gateway.requests_per_minute": cfg.Gateway.RequestsPerMinute,
		"gateway.max_concurrent":      cfg.Gateway.MaxConcurrent,

		"supervisor.host":          cfg.Supervisor.Host,
		"supervisor.poll_interval": duration(cfg.Supervisor.PollInterval),
		"supervisor.max_attempts":  cfg.Supervisor.MaxAttempts,
		"supervisor.probe_timeout": duration(cfg.Supervisor.ProbeTimeout),

		"tools.invocation_timeout": duration(cfg.Tools.InvocationTimeout),
		"tools.chat_timeout":       duration(cfg.Tools.ChatTimeout),

		"agent.enabled":        cfg.Agent.Enabled,
		"agent.name":           cfg.Agent.Name,
		"agent.description":    cfg.Agent.Description,
		"agent.system_prompt":  cfg.Agent.SystemPrompt,
		"agent.max_steps":      cfg.Agent.MaxSteps,
		"agent.model.provider": string(cfg.Agent.Model.Provider),
		"agent.model.model":    cfg.Agent.Model.Model,
		"agent.model.api_key":  cfg.Agent.Model.APIKey,
		"agent.model.site_url": cfg.Agent.Model.SiteURL,
		"agent.model.app_name": cfg.Agent.Model.AppName,

		"logging.level":      cfg.Logging.Level,
		"logging.file":       cfg.Logging.File,
		"logging.audit_file": cfg.Logging.AuditFile,
		"logging.console":    cfg.Logging.Console,
		"logging.pretty":     cfg.Logging.Pretty,
		"logging.max_size":   cfg.Logging.MaxSize,
		"logging.max_age":    cfg.Logging.MaxAge,
		"logging.compress":   cfg.Logging.Compress,
		"logging.redaction":  cfg.Logging.Redaction,
	}
	if cfg.Agent.Model.Temperature != nil {
		s["agent.model.temperature"] = *cfg.Agent.Model.Temperature
	}
	if cfg.Agent.Model.MaxTokens != nil {
		s["agent.model.max_tokens"] = *cfg.Agent.Model.MaxTokens
	}
	if cfg.Agent.Model.TopP != nil {
		s["agent.model.top_p"] = *cfg.Agent.Model.TopP
	}
	return s
}

func duration(d time.Duration) string {
	return d.String()
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
