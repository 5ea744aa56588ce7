package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/zumo/pkg/config"
	anthropicprovider "github.com/tinyland-inc/zumo/pkg/providers/anthropic"
	openaiprovider "github.com/tinyland-inc/zumo/pkg/providers/openai"
)

func TestCreateProvider_OpenAI(t *testing.T) {
	p, err := CreateProvider(config.ProviderConfig{Kind: config.ProviderOpenAI, OpenAIAPIKey: "sk"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &openaiprovider.Provider{}, p)
}

func TestCreateProvider_Anthropic(t *testing.T) {
	p, err := CreateProvider(config.ProviderConfig{
		Kind:            config.ProviderAnthropic,
		AnthropicAPIKey: "sk-ant",
		APIBase:         "https://proxy.local/v1",
	}, nil)
	require.NoError(t, err)
	require.IsType(t, &anthropicprovider.Provider{}, p)
	assert.Equal(t, "https://proxy.local", p.(*anthropicprovider.Provider).BaseURL())
}

func TestCreateProvider_Errors(t *testing.T) {
	_, err := CreateProvider(config.ProviderConfig{Kind: config.ProviderOpenAI}, nil)
	assert.Error(t, err)

	_, err = CreateProvider(config.ProviderConfig{Kind: "ollama", OpenAIAPIKey: "sk"}, nil)
	assert.ErrorContains(t, err, "unknown provider")
}

func TestResolveModel(t *testing.T) {
	p, err := CreateProvider(config.ProviderConfig{Kind: config.ProviderAnthropic, AnthropicAPIKey: "k"}, nil)
	require.NoError(t, err)

	assert.Equal(t, anthropicprovider.DefaultModel, ResolveModel(config.ProviderConfig{}, p))
	assert.Equal(t, "claude-haiku", ResolveModel(config.ProviderConfig{Model: "claude-haiku"}, p))
}
