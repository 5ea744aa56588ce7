package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/tinyland-inc/zumo/pkg/channels"
	"github.com/tinyland-inc/zumo/pkg/config"
	"github.com/tinyland-inc/zumo/pkg/logger"
	"github.com/tinyland-inc/zumo/pkg/providers"
	"github.com/tinyland-inc/zumo/pkg/responder"
	"github.com/tinyland-inc/zumo/pkg/transport"
)

const Logo = "🤖"

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

// GetConfigPath honors ZUMO_CONFIG, else ~/.zumo/config.json.
func GetConfigPath() string {
	if p := os.Getenv("ZUMO_CONFIG"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".zumo", "config.json")
}

// LoadConfig reads the config and applies its logging settings.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(GetConfigPath())
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

// TransportOptions maps the transport settings onto client options.
func TransportOptions(cfg *config.Config) []transport.Option {
	return []transport.Option{
		transport.WithPolicy(transport.Policy{
			MaxAttempts: cfg.Transport.MaxAttempts,
			BackoffBase: cfg.Transport.BackoffBase,
			MaxBackoff:  time.Duration(cfg.Transport.MaxBackoff) * time.Second,
		}),
		transport.WithTimeout(time.Duration(cfg.Transport.Timeout) * time.Second),
	}
}

func NewChannel(cfg *config.Config) *channels.ZAPIChannel {
	client := channels.NewZAPIClient(cfg.Gateway, TransportOptions(cfg)...)
	return channels.NewZAPIChannel(cfg.Gateway, client)
}

// NewResponder wires the configured backend behind the shared retry policy.
func NewResponder(cfg *config.Config) (*responder.Responder, error) {
	retrying := transport.NewClient("", TransportOptions(cfg)...)
	provider, err := providers.CreateProvider(cfg.Provider, retrying.HTTPClient())
	if err != nil {
		return nil, fmt.Errorf("error creating provider: %w", err)
	}
	return responder.New(provider, cfg.Provider), nil
}

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}

func GetVersion() string {
	return version
}
