package providers

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ChamsBouzaiene/duet/internal/engine"
)

// Provider names accepted in LLM_PROVIDER.
const (
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
	ProviderAnthropic = "anthropic"
)

// compatible lists OpenAI-compatible providers: env prefix, default base URL, default model.
var compatible = map[string]struct {
	envPrefix string
	baseURL   string
	model     string
	needsKey  bool
}{
	"kimi":     {"KIMI", "https://ark.ap-southeast.bytepluses.com/api/v3", "kimi-k2-250711", true},
	"gemini":   {"GEMINI", "https://generativelanguage.googleapis.com/v1beta/openai", "gemini-1.5-flash", true},
	"deepseek": {"DEEPSEEK", "https://api.deepseek.com/v1", "deepseek-chat", true},
	"groq":     {"GROQ", "https://api.groq.com/openai/v1", "llama-3.1-70b-versatile", true},
	"lmstudio": {"LMSTUDIO", "http://localhost:1234/v1", "local-model", false},
	"ollama":   {"OLLAMA", "http://localhost:11434/v1", "llama3.1", false},
}

// BackendConfig selects and configures the model backend.
type BackendConfig struct {
	Provider  string
	APIKey    string
	Model     string
	BaseURL   string // OpenAI-compatible endpoints
	MaxTokens int    // 0 = provider default

	AzureEndpoint   string
	AzureAPIVersion string
	AzureDeployment string
}

// BackendConfigFromEnv reads the backend configuration from the environment.
// AZURE_OPENAI_ENDPOINT selects Azure when LLM_PROVIDER is unset.
func BackendConfigFromEnv() BackendConfig {
	return BackendConfigFromLookup(os.Getenv)
}

// BackendConfigFromLookup is BackendConfigFromEnv with a custom variable source.
func BackendConfigFromLookup(getenv func(string) string) BackendConfig {
	orDefault := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	cfg := BackendConfig{Provider: strings.ToLower(getenv("LLM_PROVIDER"))}
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
		if getenv("AZURE_OPENAI_ENDPOINT") != "" {
			cfg.Provider = ProviderAzure
		}
	}
	if v, err := strconv.Atoi(getenv("MAX_TOKENS")); err == nil && v > 0 {
		cfg.MaxTokens = v
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		cfg.APIKey = getenv("OPENAI_API_KEY")
		cfg.Model = orDefault("OPENAI_MODEL", "gpt-4o-mini")
		cfg.BaseURL = getenv("OPENAI_BASE_URL")
	case ProviderAzure:
		cfg.APIKey = getenv("AZURE_OPENAI_API_KEY")
		cfg.AzureEndpoint = getenv("AZURE_OPENAI_ENDPOINT")
		cfg.AzureAPIVersion = getenv("AZURE_OPENAI_API_VERSION")
		cfg.AzureDeployment = getenv("AZURE_OPENAI_DEPLOYMENT")
		cfg.Model = orDefault("AZURE_OPENAI_MODEL", engine.DefaultModel)
	case ProviderAnthropic:
		cfg.APIKey = getenv("ANTHROPIC_API_KEY")
		cfg.Model = orDefault("ANTHROPIC_MODEL", "claude-3-5-sonnet-latest")
	default:
		if p, ok := compatible[cfg.Provider]; ok {
			cfg.APIKey = getenv(p.envPrefix + "_API_KEY")
			cfg.Model = orDefault(p.envPrefix+"_MODEL", p.model)
			cfg.BaseURL = orDefault(p.envPrefix+"_BASE_URL", p.baseURL)
		}
	}
	return cfg
}

// NewLLMClient creates the engine.LLMClient for cfg.Provider.
func NewLLMClient(cfg BackendConfig) (engine.LLMClient, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set")
		}
		return NewOpenAIClient(cfg.APIKey, cfg.BaseURL)
	case ProviderAzure:
		if cfg.APIKey == "" || cfg.AzureEndpoint == "" {
			return nil, fmt.Errorf("AZURE_OPENAI_API_KEY and AZURE_OPENAI_ENDPOINT must be set")
		}
		return NewAzureOpenAIClient(cfg.APIKey, cfg.AzureEndpoint, cfg.AzureAPIVersion, cfg.AzureDeployment)
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		return NewAnthropicClient(cfg.APIKey)
	}

	p, ok := compatible[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown LLM_PROVIDER: %s (supported: %s)", cfg.Provider, strings.Join(SupportedProviders(), ", "))
	}
	key := cfg.APIKey
	if key == "" {
		if p.needsKey {
			return nil, fmt.Errorf("%s_API_KEY not set", p.envPrefix)
		}
		key = cfg.Provider // local servers accept any key
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = p.baseURL
	}
	client, err := NewOpenAIClient(key, baseURL)
	if err != nil {
		return nil, err
	}
	client.provider = cfg.Provider
	return client, nil
}

// EnvKeys returns the variable names holding the API key, model and base URL of provider.
func EnvKeys(provider string) (apiKey, model, baseURL string) {
	switch provider {
	case ProviderOpenAI, "":
		return "OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL"
	case ProviderAzure:
		return "AZURE_OPENAI_API_KEY", "AZURE_OPENAI_MODEL", "AZURE_OPENAI_ENDPOINT"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY", "ANTHROPIC_MODEL", ""
	}
	if p, ok := compatible[provider]; ok {
		return p.envPrefix + "_API_KEY", p.envPrefix + "_MODEL", p.envPrefix + "_BASE_URL"
	}
	return "", "", ""
}

// SupportedProviders lists every accepted LLM_PROVIDER value.
func SupportedProviders() []string {
	return []string{ProviderOpenAI, ProviderAzure, ProviderAnthropic, "kimi", "gemini", "deepseek", "groq", "lmstudio", "ollama"}
}
