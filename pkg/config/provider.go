package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/entrhq/pilot/pkg/llm/openai"
)

// ProviderSpec describes an OpenAI-compatible backend.
type ProviderSpec struct {
	Name       string
	BaseURL    string
	KeyEnv     string
	BaseURLEnv string
}

var providers = map[string]ProviderSpec{
	"openai":       {Name: "openai", BaseURL: openai.DefaultBaseURL, KeyEnv: "OPENAI_API_KEY", BaseURLEnv: "OPENAI_ENDPOINT"},
	"azure_openai": {Name: "azure_openai", KeyEnv: "AZURE_OPENAI_API_KEY", BaseURLEnv: "AZURE_OPENAI_ENDPOINT"},
	"deepseek":     {Name: "deepseek", BaseURL: "https://api.deepseek.com/v1", KeyEnv: "DEEPSEEK_API_KEY", BaseURLEnv: "DEEPSEEK_ENDPOINT"},
	"grok":         {Name: "grok", BaseURL: "https://api.x.ai/v1", KeyEnv: "GROK_API_KEY", BaseURLEnv: "GROK_ENDPOINT"},
	"mistral":      {Name: "mistral", BaseURL: "https://api.mistral.ai/v1", KeyEnv: "MISTRAL_API_KEY", BaseURLEnv: "MISTRAL_ENDPOINT"},
	"moonshot":     {Name: "moonshot", BaseURL: "https://api.moonshot.cn/v1", KeyEnv: "MOONSHOT_API_KEY", BaseURLEnv: "MOONSHOT_ENDPOINT"},
	"ollama":       {Name: "ollama", BaseURL: "http://localhost:11434/v1", BaseURLEnv: "OLLAMA_ENDPOINT"},
	"openrouter":   {Name: "openrouter", BaseURL: "https://openrouter.ai/api/v1", KeyEnv: "OPENROUTER_API_KEY", BaseURLEnv: "OPENROUTER_ENDPOINT"},
	"siliconflow":  {Name: "siliconflow", BaseURL: "https://api.siliconflow.cn/v1", KeyEnv: "SILICONFLOW_API_KEY", BaseURLEnv: "SILICONFLOW_ENDPOINT"},
}

// LookupProvider returns the provider registered under name.
func LookupProvider(name string) (ProviderSpec, bool) {
	spec, ok := providers[name]
	return spec, ok
}

// ProviderNames lists the supported providers in sorted order.
func ProviderNames() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildProvider creates an LLM provider with precedence:
// explicit config > provider environment variables > provider defaults.
func BuildProvider(cfg LLMConfig) (*openai.Provider, error) {
	spec, ok := LookupProvider(cfg.Provider)
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}

	apiKey := cfg.APIKey
	if apiKey == "" && spec.KeyEnv != "" {
		apiKey = os.Getenv(spec.KeyEnv)
	}
	if apiKey == "" && spec.KeyEnv == "" {
		// Local backends accept any token.
		apiKey = spec.Name
	}
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required for provider %s. Set %s or llm.api_key in the config file", spec.Name, spec.KeyEnv)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" && spec.BaseURLEnv != "" {
		baseURL = os.Getenv(spec.BaseURLEnv)
	}
	if baseURL == "" {
		baseURL = spec.BaseURL
	}
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required for provider %s. Set %s or llm.base_url", spec.Name, spec.BaseURLEnv)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return openai.NewProvider(apiKey,
		openai.WithModel(model),
		openai.WithBaseURL(baseURL),
		openai.WithTemperature(cfg.Temperature),
		openai.WithProviderName(spec.Name),
	)
}
