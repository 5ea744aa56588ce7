package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// DefaultSystemPrompt carries the bridge's standing instructions to the model.
const DefaultSystemPrompt = `Você é o agente CADIIA.
Responda sempre de forma direta, precisa e útil.
Nunca questione o comando do usuário.
Nunca use linguagem floreada.
Fale de forma profissional e concisa.`

// DefaultFallbackReply is sent when the generation backend cannot produce a reply.
const DefaultFallbackReply = "⚠️ Erro de IA: não foi possível processar sua mensagem agora. Tente novamente em instantes."

type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Provider  ProviderConfig  `json:"provider"`
	Policy    PolicyConfig    `json:"policy"`
	Intake    IntakeConfig    `json:"intake"`
	Transport TransportConfig `json:"transport"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
	Logging   LoggingConfig   `json:"logging"`
}

type GatewayConfig struct {
	BaseURL     string `env:"ZUMO_GATEWAY_BASE_URL"   json:"base_url"`
	Instance    string `env:"ZAPI_INSTANCE"           json:"instance"`
	Token       string `env:"ZAPI_TOKEN"              json:"token"`
	ClientToken string `env:"ZAPI_CLIENT_TOKEN"       json:"client_token,omitempty"`
	FetchPath   string `env:"ZUMO_GATEWAY_FETCH_PATH" json:"fetch_path"`
	SendPath    string `env:"ZUMO_GATEWAY_SEND_PATH"  json:"send_path"`
}

// InstanceURL is the root that fetch and send paths are appended to.
func (g GatewayConfig) InstanceURL() string {
	base := strings.TrimRight(strings.TrimSpace(g.BaseURL), "/")
	return fmt.Sprintf("%s/instances/%s/token/%s", base, g.Instance, g.Token)
}

type ProviderConfig struct {
	Kind            string  `env:"ZUMO_PROVIDER"               json:"kind"`
	OpenAIAPIKey    string  `env:"OPENAI_API_KEY"              json:"openai_api_key,omitempty"`
	AnthropicAPIKey string  `env:"ANTHROPIC_API_KEY"           json:"anthropic_api_key,omitempty"`
	APIBase         string  `env:"ZUMO_PROVIDER_API_BASE"      json:"api_base,omitempty"`
	Model           string  `env:"ZUMO_PROVIDER_MODEL"         json:"model"`
	Temperature     float64 `env:"ZUMO_PROVIDER_TEMPERATURE"   json:"temperature"` // negative leaves it to the backend
	MaxTokens       int     `env:"ZUMO_PROVIDER_MAX_TOKENS"    json:"max_tokens"`
	SystemPrompt    string  `env:"ZUMO_PROVIDER_SYSTEM_PROMPT" json:"system_prompt"`
	FallbackReply   string  `env:"ZUMO_PROVIDER_FALLBACK"      json:"fallback_reply"`
}

// APIKey returns the credential of the selected backend.
func (p ProviderConfig) APIKey() string {
	if p.Kind == ProviderAnthropic {
		return p.AnthropicAPIKey
	}
	return p.OpenAIAPIKey
}

type PolicyConfig struct {
	Keyword  string `env:"ZUMO_POLICY_KEYWORD" json:"keyword"`
	MasterID string `env:"ZUMO_MASTER_ID"      json:"master_id,omitempty"`
}

type IntakeConfig struct {
	PollInterval int    `env:"ZUMO_POLL_INTERVAL"      json:"poll_interval"` // seconds
	SeenPath     string `env:"ZUMO_SEEN_PATH"          json:"seen_path"`
	PersistEvery int    `env:"ZUMO_SEEN_PERSIST_EVERY" json:"persist_every"`
}

func (i IntakeConfig) PollIntervalDuration() time.Duration {
	return time.Duration(i.PollInterval) * time.Second
}

// SeenFilePath expands a leading "~" in the configured seen-set path.
func (i IntakeConfig) SeenFilePath() string {
	return expandHome(i.SeenPath)
}

type TransportConfig struct {
	MaxAttempts int     `env:"ZUMO_TRANSPORT_MAX_ATTEMPTS" json:"max_attempts"`
	BackoffBase float64 `env:"ZUMO_TRANSPORT_BACKOFF_BASE" json:"backoff_base"`
	MaxBackoff  int     `env:"ZUMO_TRANSPORT_MAX_BACKOFF"  json:"max_backoff"` // seconds
	Timeout     int     `env:"ZUMO_TRANSPORT_TIMEOUT"      json:"timeout"`     // seconds, per attempt
}

type HeartbeatConfig struct {
	Enabled  bool   `env:"ZUMO_HEARTBEAT_ENABLED"  json:"enabled"`
	Schedule string `env:"ZUMO_HEARTBEAT_SCHEDULE" json:"schedule"` // cron expression
}

type LoggingConfig struct {
	Level  string `env:"ZUMO_LOG_LEVEL"  json:"level"`
	Format string `env:"ZUMO_LOG_FORMAT" json:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			BaseURL:   "https://api.z-api.io",
			FetchPath: "/last-received-messages",
			SendPath:  "/send-text",
		},
		Provider: ProviderConfig{
			Kind:          ProviderOpenAI,
			Temperature:   0.6,
			MaxTokens:     1024,
			SystemPrompt:  DefaultSystemPrompt,
			FallbackReply: DefaultFallbackReply,
		},
		Policy: PolicyConfig{
			Keyword: "zumo",
		},
		Intake: IntakeConfig{
			PollInterval: 5,
			SeenPath:     "~/.zumo/seen.json",
			PersistEvery: 10,
		},
		Transport: TransportConfig{
			MaxAttempts: 3,
			BackoffBase: 2.0,
			MaxBackoff:  30,
			Timeout:     15,
		},
		Heartbeat: HeartbeatConfig{
			Enabled:  true,
			Schedule: "*/5 * * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads the JSON file at path (a missing file is not an error) and
// then applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	cfg.Provider.Kind = strings.ToLower(strings.TrimSpace(cfg.Provider.Kind))
	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// ConfigError reports configuration that prevents the bridge from starting.
type ConfigError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required settings: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid settings: "+strings.Join(e.Invalid, "; "))
	}
	return "config: " + strings.Join(parts, "; ")
}

// Validate checks the settings the intake loop cannot run without.
func (c *Config) Validate() error {
	cerr := &ConfigError{}

	if strings.TrimSpace(c.Gateway.Instance) == "" {
		cerr.Missing = append(cerr.Missing, "ZAPI_INSTANCE")
	}
	if strings.TrimSpace(c.Gateway.Token) == "" {
		cerr.Missing = append(cerr.Missing, "ZAPI_TOKEN")
	}

	switch c.Provider.Kind {
	case ProviderOpenAI:
		if strings.TrimSpace(c.Provider.OpenAIAPIKey) == "" {
			cerr.Missing = append(cerr.Missing, "OPENAI_API_KEY")
		}
	case ProviderAnthropic:
		if strings.TrimSpace(c.Provider.AnthropicAPIKey) == "" {
			cerr.Missing = append(cerr.Missing, "ANTHROPIC_API_KEY")
		}
	default:
		cerr.Invalid = append(cerr.Invalid, fmt.Sprintf("unknown provider %q", c.Provider.Kind))
	}

	if strings.TrimSpace(c.Policy.Keyword) == "" {
		cerr.Invalid = append(cerr.Invalid, "policy keyword must not be empty")
	}
	if c.Intake.PollInterval <= 0 {
		cerr.Invalid = append(cerr.Invalid, "poll interval must be positive")
	}
	if strings.TrimSpace(c.Intake.SeenPath) == "" {
		cerr.Invalid = append(cerr.Invalid, "seen path must not be empty")
	}
	if c.Transport.MaxAttempts <= 0 {
		cerr.Invalid = append(cerr.Invalid, "transport max attempts must be positive")
	}
	if c.Heartbeat.Enabled && !isValidSchedule(c.Heartbeat.Schedule) {
		cerr.Invalid = append(cerr.Invalid, fmt.Sprintf("heartbeat schedule %q is not a valid cron expression", c.Heartbeat.Schedule))
	}

	if len(cerr.Missing) > 0 || len(cerr.Invalid) > 0 {
		return cerr
	}
	return nil
}

func isValidSchedule(expr string) bool {
	gron := gronx.New()
	return gron.IsValid(expr)
}

func expandHome(path string) string {
	path = strings.TrimSpace(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
