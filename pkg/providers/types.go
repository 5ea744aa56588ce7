package providers

import (
	"context"

	"github.com/tinyland-inc/zumo/pkg/providers/protocoltypes"
)

type (
	Message     = protocoltypes.Message
	LLMResponse = protocoltypes.LLMResponse
	UsageInfo   = protocoltypes.UsageInfo
)

// LLMProvider produces one completion for a message list. Recognized options:
// "max_tokens" (int) and "temperature" (float64).
type LLMProvider interface {
	Chat(ctx context.Context, messages []Message, model string, options map[string]any) (*LLMResponse, error)
	GetDefaultModel() string
}
