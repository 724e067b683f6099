package llm

import "fmt"

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	grokBaseURL       = "https://api.x.ai/v1"
	deepSeekBaseURL   = "https://api.deepseek.com/v1"

	defaultMaxTokens = 4096
)

// Factory builds a Model from a Config
type Factory func(cfg Config) (Model, error)

// New builds the Model selected by cfg.Provider
func New(cfg Config) (Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	apiKey, err := cfg.resolveAPIKey()
	if err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		return newOpenAIModel(cfg, apiKey, ""), nil
	case ProviderOpenRouter:
		return newOpenAIModel(cfg, apiKey, openRouterBaseURL), nil
	case ProviderGrok:
		return newOpenAIModel(cfg, apiKey, grokBaseURL), nil
	case ProviderDeepSeek:
		return newOpenAIModel(cfg, apiKey, deepSeekBaseURL), nil
	case ProviderAnthropic:
		return newAnthropicModel(cfg, apiKey), nil
	case ProviderGemini:
		model, err := newGeminiModel(cfg, apiKey)
		if err != nil {
			return nil, err
		}
		return model, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
