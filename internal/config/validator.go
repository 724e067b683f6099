package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/harun/radbridge/pkg/llm"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey checks the key prefix for providers with a known format.
// An empty key is accepted; the provider's environment variable is used.
func (v *Validator) ValidateAPIKey(key string, provider llm.Provider) error {
	if key == "" {
		return nil
	}

	switch provider {
	case llm.ProviderAnthropic:
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case llm.ProviderOpenAI, llm.ProviderOpenRouter, llm.ProviderDeepSeek:
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid %s API key format (should start with sk-)", provider)
		}
	case llm.ProviderGrok:
		if !strings.HasPrefix(key, "xai-") {
			return fmt.Errorf("invalid Grok API key format (should start with xai-)")
		}
	}
	return nil
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateHost validates a listen host
func (v *Validator) ValidateHost(host string) error {
	if host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if host != "localhost" && net.ParseIP(host) == nil {
		return fmt.Errorf("host must be an IP address or localhost, got %q", host)
	}
	return nil
}

// IsLoopback reports whether host only accepts local connections
func (v *Validator) IsLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error

	if err := v.ValidateHost(cfg.Gateway.Host); err != nil {
		errs = append(errs, fmt.Errorf("gateway: %w", err))
	}
	if err := v.ValidatePort(cfg.Gateway.Port); err != nil {
		errs = append(errs, fmt.Errorf("gateway: %w", err))
	}
	if cfg.Gateway.SharedSecret == "" && !v.IsLoopback(cfg.Gateway.Host) {
		errs = append(errs, fmt.Errorf("gateway: shared_secret is required when listening on %s", cfg.Gateway.Host))
	}
	if cfg.Gateway.RequestsPerMinute < 0 || cfg.Gateway.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("gateway: rate limits must be >= 0"))
	}

	if err := v.ValidateHost(cfg.Supervisor.Host); err != nil {
		errs = append(errs, fmt.Errorf("supervisor: %w", err))
	}
	if cfg.Supervisor.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("supervisor: poll_interval must be positive"))
	}
	if cfg.Supervisor.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("supervisor: max_attempts must be positive"))
	}
	if cfg.Supervisor.ProbeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("supervisor: probe_timeout must be positive"))
	}

	if cfg.Tools.ChatTimeout > 0 && cfg.Tools.InvocationTimeout > 0 &&
		cfg.Tools.ChatTimeout <= cfg.Tools.InvocationTimeout {
		errs = append(errs, fmt.Errorf("tools: chat_timeout must exceed invocation_timeout"))
	}

	if cfg.Agent.Enabled {
		if err := cfg.Agent.Model.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("agent: %w", err))
		}
		if err := v.ValidateAPIKey(cfg.Agent.Model.APIKey, cfg.Agent.Model.Provider); err != nil {
			errs = append(errs, fmt.Errorf("agent: %w", err))
		}
		if cfg.Agent.MaxSteps < 0 {
			errs = append(errs, fmt.Errorf("agent: max_steps must be >= 0"))
		}
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}

	return errs
}
