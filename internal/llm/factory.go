package llm

import (
	"fmt"
	"strings"

	"github.com/convoloop/convoloop/internal/config"
)

// ParseProviderModel parses "provider:model" or just "provider" from a flag
// value. Model is empty when not specified.
func ParseProviderModel(s string, cfg *config.Config) (string, string, error) {
	parts := strings.SplitN(s, ":", 2)
	provider := strings.TrimSpace(parts[0])
	if provider == "" {
		return "", "", fmt.Errorf("invalid provider format: %q", s)
	}
	model := ""
	if len(parts) == 2 {
		model = strings.TrimSpace(parts[1])
	}

	if cfg != nil {
		if _, ok := cfg.Providers[provider]; ok {
			return provider, model, nil
		}
	}
	switch provider {
	case config.ProviderTypeAnthropic, config.ProviderTypeOpenAI:
		return provider, model, nil
	}

	return "", "", fmt.Errorf("unknown provider: %s", provider)
}

// NewProvider creates the provider named by the config (or the config's
// default when name is empty). A non-empty model overrides the configured
// model for the provider.
func NewProvider(cfg *config.Config, name, model string) (Provider, error) {
	if name == "" {
		name = cfg.Provider
	}
	if name == "" {
		return nil, fmt.Errorf("no provider configured; set provider in config or pass --provider")
	}

	providerCfg, ok := cfg.Providers[name]
	if !ok {
		// Built-in types work without an explicit block when the API key
		// comes from the environment.
		providerCfg = config.ProviderConfig{Type: name}
	}
	providerCfg = config.ApplyEnvCredentials(name, providerCfg)
	if model != "" {
		providerCfg.Model = model
	} else if providerCfg.Model == "" {
		providerCfg.Model = cfg.Model
	}

	switch providerCfg.ResolvedType(name) {
	case config.ProviderTypeAnthropic:
		if providerCfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key not configured; set ANTHROPIC_API_KEY or add to config")
		}
		return NewAnthropicProvider(providerCfg.APIKey, providerCfg.Model), nil
	case config.ProviderTypeOpenAI:
		if providerCfg.BaseURL != "" {
			return NewOpenAICompatProvider(providerCfg.BaseURL, providerCfg.APIKey, providerCfg.Model, name), nil
		}
		if providerCfg.APIKey == "" {
			return nil, fmt.Errorf("openai API key not configured; set OPENAI_API_KEY or add to config")
		}
		return NewOpenAIProvider(providerCfg.APIKey, providerCfg.Model), nil
	default:
		return nil, fmt.Errorf("provider %q has unknown type %q", name, providerCfg.Type)
	}
}
