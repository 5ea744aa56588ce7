package providers

import (
	"fmt"
	"net/http"

	"github.com/tinyland-inc/zumo/pkg/config"
	anthropicprovider "github.com/tinyland-inc/zumo/pkg/providers/anthropic"
	openaiprovider "github.com/tinyland-inc/zumo/pkg/providers/openai"
)

// CreateProvider builds the configured backend. httpClient carries the shared
// retry policy; nil falls back to the SDK default transport.
func CreateProvider(cfg config.ProviderConfig, httpClient *http.Client) (LLMProvider, error) {
	switch cfg.Kind {
	case config.ProviderOpenAI, "":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("provider %q: no API key configured", config.ProviderOpenAI)
		}
		return openaiprovider.NewProviderWithBaseURL(cfg.OpenAIAPIKey, cfg.APIBase, httpClient), nil
	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("provider %q: no API key configured", config.ProviderAnthropic)
		}
		return anthropicprovider.NewProviderWithBaseURL(cfg.AnthropicAPIKey, cfg.APIBase, httpClient), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Kind)
	}
}

// ResolveModel returns the configured model, or the backend default.
func ResolveModel(cfg config.ProviderConfig, p LLMProvider) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	return p.GetDefaultModel()
}
