package anthropicprovider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tinyland-inc/zumo/pkg/logger"
	"github.com/tinyland-inc/zumo/pkg/providers/protocoltypes"
)

type (
	LLMResponse = protocoltypes.LLMResponse
	UsageInfo   = protocoltypes.UsageInfo
	Message     = protocoltypes.Message
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	DefaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 1024
)

type Provider struct {
	client  *anthropic.Client
	baseURL string
}

func NewProvider(apiKey string) *Provider {
	return NewProviderWithBaseURL(apiKey, "", nil)
}

// NewProviderWithBaseURL routes requests through httpClient when given and
// turns off the SDK's internal retries.
func NewProviderWithBaseURL(apiKey, apiBase string, httpClient *http.Client) *Provider {
	baseURL := normalizeBaseURL(apiBase)
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	client := anthropic.NewClient(opts...)
	return &Provider{
		client:  &client,
		baseURL: baseURL,
	}
}

func NewProviderWithClient(client *anthropic.Client) *Provider {
	return &Provider{
		client:  client,
		baseURL: defaultBaseURL,
	}
}

func (p *Provider) Chat(
	ctx context.Context,
	messages []Message,
	model string,
	options map[string]any,
) (*LLMResponse, error) {
	if model == "" {
		model = DefaultModel
	}
	params := buildParams(messages, model, options)

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		logger.ErrorCF("provider.anthropic", "Messages call failed", map[string]any{
			"model":          model,
			"messages_count": len(messages),
			"error":          err.Error(),
		})
		return nil, fmt.Errorf("claude API call: %w", err)
	}

	return parseResponse(resp), nil
}

func (p *Provider) GetDefaultModel() string {
	return DefaultModel
}

func (p *Provider) BaseURL() string {
	return p.baseURL
}

func buildParams(messages []Message, model string, options map[string]any) anthropic.MessageNewParams {
	var system []anthropic.TextBlockParam
	var anthropicMessages []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case "user":
			anthropicMessages = append(anthropicMessages,
				anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)),
			)
		case "assistant":
			anthropicMessages = append(anthropicMessages,
				anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)),
			)
		}
	}

	maxTokens := int64(defaultMaxTokens)
	if mt, ok := options["max_tokens"].(int); ok && mt > 0 {
		maxTokens = int64(mt)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  anthropicMessages,
		MaxTokens: maxTokens,
	}

	if len(system) > 0 {
		params.System = system
	}

	if temp, ok := options["temperature"].(float64); ok {
		params.Temperature = anthropic.Float(temp)
	}

	return params
}

func parseResponse(resp *anthropic.Message) *LLMResponse {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}

	finishReason := "stop"
	if resp.StopReason == anthropic.StopReasonMaxTokens {
		finishReason = "length"
	}

	return &LLMResponse{
		Content:      sb.String(),
		FinishReason: finishReason,
		Usage: &UsageInfo{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}
}

func normalizeBaseURL(apiBase string) string {
	base := strings.TrimSpace(apiBase)
	if base == "" {
		return defaultBaseURL
	}

	base = strings.TrimRight(base, "/")
	if b, ok := strings.CutSuffix(base, "/v1"); ok {
		base = b
	}
	if base == "" {
		return defaultBaseURL
	}

	return base
}
