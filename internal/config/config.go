package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/harun/radbridge/pkg/llm"
)

// Config is the radbridge process configuration
type Config struct {
	Gateway    GatewayConfig    `json:"gateway" mapstructure:"gateway"`
	Supervisor SupervisorConfig `json:"supervisor" mapstructure:"supervisor"`
	Tools      ToolsConfig      `json:"tools" mapstructure:"tools"`
	Agent      AgentConfig      `json:"agent" mapstructure:"agent"`
	Logging    LoggingConfig    `json:"logging" mapstructure:"logging"`

	// DataDir holds the log, audit and PID files
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// GatewayConfig configures the front-end gateway
type GatewayConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
	// SharedSecret enables HMAC authentication; required off loopback
	SharedSecret      string        `json:"shared_secret" mapstructure:"shared_secret"`
	TickInterval      time.Duration `json:"tick_interval" mapstructure:"tick_interval"`
	RequestsPerMinute int           `json:"requests_per_minute" mapstructure:"requests_per_minute"`
	MaxConcurrent     int           `json:"max_concurrent" mapstructure:"max_concurrent"`
}

// Addr returns host:port
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// SupervisorConfig configures agent server startup
type SupervisorConfig struct {
	Host         string        `json:"host" mapstructure:"host"`
	PollInterval time.Duration `json:"poll_interval" mapstructure:"poll_interval"`
	MaxAttempts  int           `json:"max_attempts" mapstructure:"max_attempts"`
	ProbeTimeout time.Duration `json:"probe_timeout" mapstructure:"probe_timeout"`
}

// ToolsConfig configures front-end tool calls
type ToolsConfig struct {
	// InvocationTimeout bounds one tool call; negative waits forever
	InvocationTimeout time.Duration `json:"invocation_timeout" mapstructure:"invocation_timeout"`
	// ChatTimeout bounds one blocking chat; negative waits forever
	ChatTimeout time.Duration `json:"chat_timeout" mapstructure:"chat_timeout"`
}

// AgentConfig optionally starts an agent when the server starts, before any
// front-end calls agent.init
type AgentConfig struct {
	Enabled      bool       `json:"enabled" mapstructure:"enabled"`
	Name         string     `json:"name" mapstructure:"name"`
	Description  string     `json:"description" mapstructure:"description"`
	SystemPrompt string     `json:"system_prompt" mapstructure:"system_prompt"`
	MaxSteps     int        `json:"max_steps" mapstructure:"max_steps"`
	Model        llm.Config `json:"model" mapstructure:"model"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:              "127.0.0.1",
			Port:              7450,
			TickInterval:      30 * time.Second,
			RequestsPerMinute: 120,
			MaxConcurrent:     16,
		},
		Supervisor: SupervisorConfig{
			Host:         "127.0.0.1",
			PollInterval: 200 * time.Millisecond,
			MaxAttempts:  50,
			ProbeTimeout: time.Second,
		},
		Tools: ToolsConfig{
			InvocationTimeout: 5 * time.Minute,
			ChatTimeout:       10 * time.Minute,
		},
		Agent: AgentConfig{
			Name:     "radbridge-agent",
			MaxSteps: 10,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	if masked.Gateway.SharedSecret != "" {
		masked.Gateway.SharedSecret = "***"
	}
	if masked.Agent.Model.APIKey != "" {
		masked.Agent.Model.APIKey = "***"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Validate checks the configuration and returns the first problem found
func (c *Config) Validate() error {
	if errs := NewValidator().ValidateConfig(c); len(errs) > 0 {
		return errs[0]
	}
	return nil
}
