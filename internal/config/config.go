package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Provider types understood by the factory.
const (
	ProviderTypeAnthropic = "anthropic"
	ProviderTypeOpenAI    = "openai"
)

type Config struct {
	Provider  string                    `mapstructure:"provider"`  // Default provider name
	Model     string                    `mapstructure:"model"`     // Default model override
	MaxTurns  int                       `mapstructure:"max_turns"` // Tool-loop turn limit
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Sessions  SessionsConfig            `mapstructure:"sessions"`
}

// SessionsConfig configures conversation persistence.
type SessionsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`      // Master switch
	Path       string `mapstructure:"path"`         // Override default database path
	MaxAgeDays int    `mapstructure:"max_age_days"` // Auto-delete after N days (0 = never)
	MaxCount   int    `mapstructure:"max_count"`    // Keep at most N conversations (0 = unlimited)
}

// ProviderConfig describes one configured provider. Type may be omitted
// when the block's name is itself a built-in type.
type ProviderConfig struct {
	Type    string `mapstructure:"type"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"` // For OpenAI-compatible servers
}

// ResolvedType returns the provider type, inferring it from the block name
// when unset.
func (p ProviderConfig) ResolvedType(name string) string {
	if p.Type != "" {
		return p.Type
	}
	return name
}

// ApplyEnvCredentials fills in an API key from the conventional environment
// variable when the config has none.
func ApplyEnvCredentials(name string, p ProviderConfig) ProviderConfig {
	if p.APIKey != "" {
		return p
	}
	switch p.ResolvedType(name) {
	case ProviderTypeAnthropic:
		p.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	case ProviderTypeOpenAI:
		p.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return p
}

// GetConfigDir returns the XDG config directory for convoloop.
func GetConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "convoloop"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "convoloop"), nil
}

// Load reads the config file (optional) and applies defaults.
func Load() (*Config, error) {
	configPath, err := GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")

	v.SetDefault("provider", ProviderTypeAnthropic)
	v.SetDefault("max_turns", 10)
	v.SetDefault("sessions.enabled", true)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}

	return &cfg, nil
}
