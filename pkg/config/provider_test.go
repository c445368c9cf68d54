package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildProvider(t *testing.T) {
	tests := []struct {
		name        string
		cfg         LLMConfig
		env         map[string]string
		wantBaseURL string
		wantModel   string
		wantErr     bool
	}{
		{
			name:        "openai from env key",
			cfg:         LLMConfig{Provider: "openai", Model: "gpt-4o", Temperature: 0.2},
			env:         map[string]string{"OPENAI_API_KEY": "sk-test"},
			wantBaseURL: "https://api.openai.com/v1",
			wantModel:   "gpt-4o",
		},
		{
			name:        "deepseek default base url",
			cfg:         LLMConfig{Provider: "deepseek", Model: "deepseek-chat", APIKey: "k"},
			wantBaseURL: "https://api.deepseek.com/v1",
			wantModel:   "deepseek-chat",
		},
		{
			name:        "endpoint env overrides default",
			cfg:         LLMConfig{Provider: "openai", APIKey: "k"},
			env:         map[string]string{"OPENAI_ENDPOINT": "https://proxy.example/v1"},
			wantBaseURL: "https://proxy.example/v1",
			wantModel:   DefaultModel,
		},
		{
			name:        "ollama needs no key",
			cfg:         LLMConfig{Provider: "ollama", Model: "qwen2.5"},
			wantBaseURL: "http://localhost:11434/v1",
			wantModel:   "qwen2.5",
		},
		{
			name:    "azure needs endpoint",
			cfg:     LLMConfig{Provider: "azure_openai", APIKey: "k"},
			wantErr: true,
		},
		{
			name:    "missing key",
			cfg:     LLMConfig{Provider: "mistral"},
			wantErr: true,
		},
		{
			name:    "unknown provider",
			cfg:     LLMConfig{Provider: "nope", APIKey: "k"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, name := range []string{"OPENAI_API_KEY", "OPENAI_ENDPOINT", "OPENAI_BASE_URL", "MISTRAL_API_KEY", "AZURE_OPENAI_ENDPOINT", "OLLAMA_ENDPOINT", "DEEPSEEK_ENDPOINT"} {
				t.Setenv(name, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			p, err := BuildProvider(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBaseURL, p.GetBaseURL())
			assert.Equal(t, tt.wantModel, p.GetModel())
		})
	}
}

func TestProviderNamesSorted(t *testing.T) {
	names := ProviderNames()
	assert.Contains(t, names, "openai")
	assert.IsIncreasing(t, names)
}
