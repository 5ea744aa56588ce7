package openaiprovider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/tinyland-inc/zumo/pkg/logger"
	"github.com/tinyland-inc/zumo/pkg/providers/protocoltypes"
)

type (
	LLMResponse = protocoltypes.LLMResponse
	UsageInfo   = protocoltypes.UsageInfo
	Message     = protocoltypes.Message
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
)

type Provider struct {
	client  *openai.Client
	baseURL string
}

func NewProvider(apiKey string) *Provider {
	return NewProviderWithBaseURL(apiKey, "", nil)
}

// NewProviderWithBaseURL builds a provider whose requests go through
// httpClient when one is given. The SDK's own retries are disabled so a
// single retry policy applies.
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
	client := openai.NewClient(opts...)
	return &Provider{
		client:  &client,
		baseURL: baseURL,
	}
}

func NewProviderWithClient(client *openai.Client) *Provider {
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

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		fields := map[string]any{
			"model":          model,
			"messages_count": len(messages),
			"error":          err.Error(),
		}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			fields["status_code"] = apiErr.StatusCode
			fields["api_code"] = apiErr.Code
		}
		logger.ErrorCF("provider.openai", "Chat completion failed", fields)
		return nil, fmt.Errorf("openai API call: %w", err)
	}

	return parseResponse(resp)
}

func (p *Provider) GetDefaultModel() string {
	return DefaultModel
}

func (p *Provider) BaseURL() string {
	return p.baseURL
}

func buildParams(messages []Message, model string, options map[string]any) openai.ChatCompletionNewParams {
	var chat []openai.ChatCompletionMessageParamUnion
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			chat = append(chat, openai.SystemMessage(msg.Content))
		case "user":
			chat = append(chat, openai.UserMessage(msg.Content))
		case "assistant":
			chat = append(chat, openai.AssistantMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: chat,
	}
	if temp, ok := options["temperature"].(float64); ok {
		params.Temperature = openai.Float(temp)
	}
	if mt, ok := options["max_tokens"].(int); ok && mt > 0 {
		params.MaxCompletionTokens = openai.Int(int64(mt))
	}
	return params
}

var errNoChoices = errors.New("openai: response carried no choices")

func parseResponse(resp *openai.ChatCompletion) (*LLMResponse, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errNoChoices
	}
	choice := resp.Choices[0]

	finishReason := string(choice.FinishReason)
	if finishReason == "" {
		finishReason = "stop"
	}

	var usage *UsageInfo
	if resp.Usage.TotalTokens > 0 {
		usage = &UsageInfo{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		}
	}

	return &LLMResponse{
		Content:      choice.Message.Content,
		FinishReason: finishReason,
		Usage:        usage,
	}, nil
}

func normalizeBaseURL(apiBase string) string {
	base := strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if base == "" {
		return defaultBaseURL
	}
	return base
}
