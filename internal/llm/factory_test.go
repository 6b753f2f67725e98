package llm

import (
	"strings"
	"testing"

	"github.com/convoloop/convoloop/internal/config"
)

func TestParseProviderModel(t *testing.T) {
	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{
			"local": {Type: config.ProviderTypeOpenAI, BaseURL: "http://localhost:8080/v1"},
		},
	}

	tests := []struct {
		input        string
		wantProvider string
		wantModel    string
		wantErr      bool
	}{
		{"anthropic", "anthropic", "", false},
		{"openai:gpt-4o", "openai", "gpt-4o", false},
		{"anthropic:claude-sonnet-4-5", "anthropic", "claude-sonnet-4-5", false},
		{"local", "local", "", false},
		{"local:llama3", "local", "llama3", false},
		{"nonsense", "", "", true},
		{":model-only", "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			provider, model, err := ParseProviderModel(tt.input, cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseProviderModel(%q) succeeded, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseProviderModel(%q) error = %v", tt.input, err)
			}
			if provider != tt.wantProvider || model != tt.wantModel {
				t.Errorf("got %q/%q, want %q/%q", provider, model, tt.wantProvider, tt.wantModel)
			}
		})
	}
}

func TestNewProviderRequiresCredentials(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg := &config.Config{
		Provider:  "anthropic",
		Providers: map[string]config.ProviderConfig{},
	}
	if _, err := NewProvider(cfg, "", ""); err == nil {
		t.Error("expected error without an API key")
	}
}

func TestNewProviderFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	cfg := &config.Config{
		Provider:  "anthropic",
		Providers: map[string]config.ProviderConfig{},
	}
	provider, err := NewProvider(cfg, "", "claude-sonnet-4-5")
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	if !strings.HasPrefix(provider.Name(), "Anthropic") {
		t.Errorf("Name() = %q", provider.Name())
	}
	if !provider.Capabilities().ToolCalls {
		t.Error("anthropic provider must support tool calls")
	}
}

func TestNewProviderCompatBaseURL(t *testing.T) {
	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{
			"local": {Type: config.ProviderTypeOpenAI, BaseURL: "http://localhost:8080/v1", Model: "llama3"},
		},
	}
	provider, err := NewProvider(cfg, "local", "")
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	if !strings.HasPrefix(provider.Name(), "local") {
		t.Errorf("Name() = %q, want the config block name first", provider.Name())
	}
}
