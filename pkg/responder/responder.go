// Package responder turns an admitted message into reply text. It never
// fails: any backend problem yields the configured fallback reply.
package responder

import (
	"context"
	"fmt"
	"strings"

	"github.com/tinyland-inc/zumo/pkg/config"
	"github.com/tinyland-inc/zumo/pkg/logger"
	"github.com/tinyland-inc/zumo/pkg/providers"
	"github.com/tinyland-inc/zumo/pkg/utils"
)

type Responder struct {
	provider     providers.LLMProvider
	model        string
	systemPrompt string
	fallback     string
	options      map[string]any
}

func New(provider providers.LLMProvider, cfg config.ProviderConfig) *Responder {
	fallback := strings.TrimSpace(cfg.FallbackReply)
	if fallback == "" {
		fallback = config.DefaultFallbackReply
	}
	options := map[string]any{}
	if cfg.MaxTokens > 0 {
		options["max_tokens"] = cfg.MaxTokens
	}
	// Zero is a valid temperature; only a negative value defers to the backend.
	if cfg.Temperature >= 0 {
		options["temperature"] = cfg.Temperature
	}
	return &Responder{
		provider:     provider,
		model:        providers.ResolveModel(cfg, provider),
		systemPrompt: cfg.SystemPrompt,
		fallback:     fallback,
		options:      options,
	}
}

func (r *Responder) Fallback() string {
	return r.fallback
}

func (r *Responder) Model() string {
	return r.model
}

// Generate returns the model's reply to prompt, or the fallback text.
func (r *Responder) Generate(ctx context.Context, prompt string) (reply string) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorCF("responder", "Provider panicked, using fallback", map[string]any{
				"panic": fmt.Sprint(rec),
			})
			reply = r.fallback
		}
	}()

	resp, err := r.provider.Chat(ctx, r.messages(prompt), r.model, r.options)
	if err != nil {
		logger.WarnCF("responder", "Generation failed, using fallback", map[string]any{
			"model": r.model,
			"error": err.Error(),
		})
		return r.fallback
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		logger.WarnCF("responder", "Empty completion, using fallback", map[string]any{
			"model": r.model,
		})
		return r.fallback
	}

	fields := map[string]any{
		"model":   r.model,
		"preview": utils.Truncate(utils.SingleLine(resp.Content), 60),
	}
	if resp.Usage != nil {
		fields["total_tokens"] = resp.Usage.TotalTokens
	}
	logger.DebugCF("responder", "Reply generated", fields)
	return strings.TrimSpace(resp.Content)
}

func (r *Responder) messages(prompt string) []providers.Message {
	var msgs []providers.Message
	if strings.TrimSpace(r.systemPrompt) != "" {
		msgs = append(msgs, providers.Message{Role: "system", Content: r.systemPrompt})
	}
	return append(msgs, providers.Message{Role: "user", Content: prompt})
}
