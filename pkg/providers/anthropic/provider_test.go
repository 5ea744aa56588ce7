package anthropicprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tinyland-inc/zumo/pkg/transport"
)

func TestBuildParams_BasicMessage(t *testing.T) {
	messages := []Message{
		{Role: "user", Content: "Hello"},
	}
	params := buildParams(messages, "claude-sonnet-4-5", map[string]any{
		"max_tokens": 512,
	})
	if string(params.Model) != "claude-sonnet-4-5" {
		t.Errorf("Model = %q, want %q", params.Model, "claude-sonnet-4-5")
	}
	if params.MaxTokens != 512 {
		t.Errorf("MaxTokens = %d, want 512", params.MaxTokens)
	}
	if len(params.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(params.Messages))
	}
}

func TestBuildParams_DefaultMaxTokens(t *testing.T) {
	params := buildParams([]Message{{Role: "user", Content: "Hi"}}, "m", nil)
	if params.MaxTokens != defaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", params.MaxTokens, defaultMaxTokens)
	}
}

func TestBuildParams_SystemMessage(t *testing.T) {
	messages := []Message{
		{Role: "system", Content: "Você é o agente CADIIA."},
		{Role: "user", Content: "Hi"},
	}
	params := buildParams(messages, "claude-sonnet-4-5", map[string]any{"temperature": 0.6})
	if len(params.System) != 1 {
		t.Fatalf("len(System) = %d, want 1", len(params.System))
	}
	if params.System[0].Text != "Você é o agente CADIIA." {
		t.Errorf("System[0].Text = %q", params.System[0].Text)
	}
	if len(params.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(params.Messages))
	}
	if params.Temperature.Value != 0.6 {
		t.Errorf("Temperature = %v, want 0.6", params.Temperature.Value)
	}
}

func TestParseResponse_TextOnly(t *testing.T) {
	resp := &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{},
		Usage: anthropic.Usage{
			InputTokens:  10,
			OutputTokens: 20,
		},
	}
	result := parseResponse(resp)
	if result.Usage.PromptTokens != 10 {
		t.Errorf("PromptTokens = %d, want 10", result.Usage.PromptTokens)
	}
	if result.Usage.CompletionTokens != 20 {
		t.Errorf("CompletionTokens = %d, want 20", result.Usage.CompletionTokens)
	}
	if result.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want %q", result.FinishReason, "stop")
	}
}

func TestParseResponse_StopReasons(t *testing.T) {
	tests := []struct {
		stopReason anthropic.StopReason
		want       string
	}{
		{anthropic.StopReasonEndTurn, "stop"},
		{anthropic.StopReasonMaxTokens, "length"},
		{anthropic.StopReasonStopSequence, "stop"},
	}
	for _, tt := range tests {
		resp := &anthropic.Message{
			StopReason: tt.stopReason,
		}
		result := parseResponse(resp)
		if result.FinishReason != tt.want {
			t.Errorf("StopReason %q: FinishReason = %q, want %q", tt.stopReason, result.FinishReason, tt.want)
		}
	}
}

func messagesHandler(t *testing.T, text string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var reqBody map[string]any
		json.NewDecoder(r.Body).Decode(&reqBody)

		resp := map[string]any{
			"id":          "msg_test",
			"type":        "message",
			"role":        "assistant",
			"model":       reqBody["model"],
			"stop_reason": "end_turn",
			"content": []map[string]any{
				{"type": "text", "text": text},
			},
			"usage": map[string]any{
				"input_tokens":  15,
				"output_tokens": 8,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func TestProvider_ChatRoundTrip(t *testing.T) {
	server := httptest.NewServer(messagesHandler(t, "Paris."))
	defer server.Close()

	provider := NewProviderWithClient(createAnthropicTestClient(server.URL, "test-key"))
	messages := []Message{{Role: "user", Content: "zumo, qual a capital da frança"}}
	resp, err := provider.Chat(t.Context(), messages, "claude-sonnet-4-5", map[string]any{"max_tokens": 1024})
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if resp.Content != "Paris." {
		t.Errorf("Content = %q, want %q", resp.Content, "Paris.")
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want %q", resp.FinishReason, "stop")
	}
	if resp.Usage.PromptTokens != 15 {
		t.Errorf("PromptTokens = %d, want 15", resp.Usage.PromptTokens)
	}
}

func TestProvider_ChatThroughRetryingClient(t *testing.T) {
	var requests atomic.Int32
	ok := messagesHandler(t, "ok")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
			return
		}
		ok(w, r)
	}))
	defer server.Close()

	retrying := transport.NewClient(server.URL, transport.WithSleep(func(ctx context.Context, _ time.Duration) error {
		return ctx.Err()
	}))
	p := NewProviderWithBaseURL("test-key", server.URL, retrying.HTTPClient())

	resp, err := p.Chat(t.Context(), []Message{{Role: "user", Content: "hello"}}, "", nil)
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("Content = %q, want %q", resp.Content, "ok")
	}
	if got := requests.Load(); got != 2 {
		t.Fatalf("requests = %d, want 2", got)
	}
}

func TestProvider_GetDefaultModel(t *testing.T) {
	p := NewProvider("test-key")
	if got := p.GetDefaultModel(); got != DefaultModel {
		t.Errorf("GetDefaultModel() = %q, want %q", got, DefaultModel)
	}
}

func TestProvider_NewProviderWithBaseURL_NormalizesV1Suffix(t *testing.T) {
	p := NewProviderWithBaseURL("key", "https://api.anthropic.com/v1/", nil)
	if got := p.BaseURL(); got != "https://api.anthropic.com" {
		t.Fatalf("BaseURL() = %q, want %q", got, "https://api.anthropic.com")
	}
}

func createAnthropicTestClient(baseURL, apiKey string) *anthropic.Client {
	c := anthropic.NewClient(
		anthropicoption.WithAPIKey(apiKey),
		anthropicoption.WithBaseURL(baseURL),
		anthropicoption.WithMaxRetries(0),
	)
	return &c
}
