package process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tinyland-inc/zumo/cmd/zumo/internal"
	"github.com/tinyland-inc/zumo/pkg/bus"
	"github.com/tinyland-inc/zumo/pkg/channels"
	"github.com/tinyland-inc/zumo/pkg/config"
	"github.com/tinyland-inc/zumo/pkg/policy"
)

type options struct {
	input  string
	dryRun bool
}

// entry is the one-shot input format.
type entry struct {
	Numero   string `json:"numero"`
	Mensagem string `json:"mensagem"`
}

func readEntry(path string) (entry, error) {
	var e entry
	data, err := os.ReadFile(path)
	if err != nil {
		return e, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("parsing %s: %w", path, err)
	}
	e.Numero = strings.TrimSpace(e.Numero)
	e.Mensagem = strings.TrimSpace(e.Mensagem)
	return e, nil
}

func toMessage(e entry) bus.InboundMessage {
	base := channels.NewBaseChannel("file")
	return base.BuildMessage("", e.Numero, e.Numero, e.Mensagem, false, channels.IsGroupChatID(e.Numero), 0, nil)
}

func processCmd(ctx context.Context, out io.Writer, opts options) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := cfg.Validate(); err != nil {
		var cerr *config.ConfigError
		// A dry run never touches the gateway.
		if !opts.dryRun || !errors.As(err, &cerr) || !onlyGatewayMissing(cerr) {
			return err
		}
	}

	e, err := readEntry(opts.input)
	if err != nil {
		return err
	}
	msg := toMessage(e)
	fmt.Fprintf(out, "📨 %s: %s\n", e.Numero, e.Mensagem)

	decision := policy.New(cfg.Policy).Evaluate(msg)
	if !decision.Respond {
		fmt.Fprintf(out, "⏸ Ignored (%s)\n", decision.Reason)
		return nil
	}

	gen, err := internal.NewResponder(cfg)
	if err != nil {
		return err
	}
	reply := gen.Generate(ctx, msg.Content)
	fmt.Fprintf(out, "💬 %s\n", reply)

	if opts.dryRun {
		return nil
	}

	ch := internal.NewChannel(cfg)
	if err := ch.Send(ctx, bus.OutboundMessage{Channel: ch.Name(), ChatID: msg.ChatID, Content: reply}); err != nil {
		return fmt.Errorf("sending reply: %w", err)
	}
	fmt.Fprintln(out, "✓ Reply sent")
	return nil
}

func onlyGatewayMissing(cerr *config.ConfigError) bool {
	if len(cerr.Invalid) > 0 {
		return false
	}
	for _, m := range cerr.Missing {
		if m != "ZAPI_INSTANCE" && m != "ZAPI_TOKEN" {
			return false
		}
	}
	return true
}
