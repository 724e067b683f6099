package llm

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Provider is the discriminator of a model configuration
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderAnthropic  Provider = "anthropic"
	ProviderGemini     Provider = "gemini"
	ProviderOpenRouter Provider = "openrouter"
	ProviderGrok       Provider = "grok"
	ProviderDeepSeek   Provider = "deepseek"
)

var providerEnvKeys = map[Provider]string{
	ProviderOpenAI:     "OPENAI_API_KEY",
	ProviderAnthropic:  "ANTHROPIC_API_KEY",
	ProviderGemini:     "GEMINI_API_KEY",
	ProviderOpenRouter: "OPENROUTER_API_KEY",
	ProviderGrok:       "XAI_API_KEY",
	ProviderDeepSeek:   "DEEPSEEK_API_KEY",
}

// ParseProvider normalizes a provider tag such as "OpenAI" or "deepseek"
func ParseProvider(value string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := providerEnvKeys[p]; !ok {
		return "", fmt.Errorf("unsupported provider: %q", value)
	}
	return p, nil
}

// UnmarshalJSON accepts provider tags in any letter case
func (p *Provider) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("provider must be a string: %w", err)
	}
	parsed, err := ParseProvider(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// EnvKey returns the environment variable consulted when no API key is set
func (p Provider) EnvKey() string {
	return providerEnvKeys[p]
}

// Config selects a provider and carries its settings. SiteURL and AppName
// only apply to OpenRouter.
type Config struct {
	Provider Provider `json:"provider" mapstructure:"provider"`
	Model    string   `json:"model" mapstructure:"model"`
	APIKey   string   `json:"apiKey,omitempty" mapstructure:"api_key"`

	SiteURL string `json:"siteUrl,omitempty" mapstructure:"site_url"`
	AppName string `json:"appName,omitempty" mapstructure:"app_name"`

	Temperature *float64 `json:"temperature,omitempty" mapstructure:"temperature"`
	MaxTokens   *int     `json:"maxTokens,omitempty" mapstructure:"max_tokens"`
	TopP        *float64 `json:"topP,omitempty" mapstructure:"top_p"`
}

// Validate checks the configuration without contacting the provider
func (c Config) Validate() error {
	if _, err := ParseProvider(string(c.Provider)); err != nil {
		return err
	}
	if c.Model == "" {
		return fmt.Errorf("%s: model is required", c.Provider)
	}
	if c.Provider != ProviderOpenRouter && (c.SiteURL != "" || c.AppName != "") {
		return fmt.Errorf("%s: siteUrl and appName are only supported by openrouter", c.Provider)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("%s: temperature must be between 0 and 2", c.Provider)
	}
	if c.TopP != nil && (*c.TopP <= 0 || *c.TopP > 1) {
		return fmt.Errorf("%s: topP must be in (0, 1]", c.Provider)
	}
	if c.MaxTokens != nil && *c.MaxTokens <= 0 {
		return fmt.Errorf("%s: maxTokens must be positive", c.Provider)
	}
	return nil
}

// resolveAPIKey returns the configured key or the provider's env var
func (c Config) resolveAPIKey() (string, error) {
	if c.APIKey != "" {
		return c.APIKey, nil
	}
	envKey := c.Provider.EnvKey()
	if key := os.Getenv(envKey); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%s: no api key configured and %s is not set", c.Provider, envKey)
}
