package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tinyland-inc/zumo/cmd/zumo/internal"
	"github.com/tinyland-inc/zumo/pkg/config"
	"github.com/tinyland-inc/zumo/pkg/heartbeat"
	"github.com/tinyland-inc/zumo/pkg/intake"
	"github.com/tinyland-inc/zumo/pkg/logger"
	"github.com/tinyland-inc/zumo/pkg/policy"
	"github.com/tinyland-inc/zumo/pkg/seen"
)

func gatewayCmd(parent context.Context, debug bool) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}

	if err := cfg.Validate(); err != nil {
		var cerr *config.ConfigError
		if errors.As(err, &cerr) {
			for _, m := range cerr.Missing {
				fmt.Fprintf(os.Stderr, "✗ missing %s\n", m)
			}
			for _, inv := range cerr.Invalid {
				fmt.Fprintf(os.Stderr, "✗ %s\n", inv)
			}
		}
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg)
}

// run builds the components from cfg and blocks until ctx is canceled.
func run(ctx context.Context, cfg *config.Config) error {
	gen, err := internal.NewResponder(cfg)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Provider: %s (model %s)\n", cfg.Provider.Kind, gen.Model())

	store := seen.NewStore(cfg.Intake.SeenFilePath(), cfg.Intake.PersistEvery)
	if err := store.Load(); err != nil {
		logger.WarnCF("gateway", "Seen set unreadable, starting empty", map[string]any{
			"path":  store.Path(),
			"error": err.Error(),
		})
	}
	fmt.Printf("✓ Seen set: %d ids from %s\n", store.Len(), store.Path())

	ch := internal.NewChannel(cfg)
	loop := intake.New(ch, store, policy.New(cfg.Policy), gen,
		intake.WithInterval(cfg.Intake.PollIntervalDuration()),
	)

	hb := heartbeat.NewHeartbeatService(cfg.Heartbeat.Schedule, cfg.Heartbeat.Enabled, map[string]any{
		"channel": ch.Name(),
	})
	if err := hb.Start(); err != nil {
		fmt.Printf("Error starting heartbeat service: %v\n", err)
	} else if cfg.Heartbeat.Enabled {
		fmt.Println("✓ Heartbeat service started")
	}
	defer hb.Stop()

	fmt.Printf("✓ Polling %s every %s\n", ch.Name(), cfg.Intake.PollIntervalDuration())
	fmt.Println("Press Ctrl+C to stop")

	err = loop.Run(ctx)

	fmt.Println("\nShutting down...")
	fmt.Println("✓ Gateway stopped")
	return err
}
