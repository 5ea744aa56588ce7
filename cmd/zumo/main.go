// zumo - WhatsApp gateway bridge that answers keyword-tagged messages
// with a language model.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/zumo/cmd/zumo/internal"
	"github.com/tinyland-inc/zumo/cmd/zumo/internal/agent"
	"github.com/tinyland-inc/zumo/cmd/zumo/internal/gateway"
	"github.com/tinyland-inc/zumo/cmd/zumo/internal/process"
	"github.com/tinyland-inc/zumo/cmd/zumo/internal/seen"
	"github.com/tinyland-inc/zumo/cmd/zumo/internal/version"
)

func NewZumoCommand() *cobra.Command {
	short := fmt.Sprintf("%s zumo - WhatsApp reply bridge v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "zumo",
		Short:   short,
		Example: "zumo gateway",
	}

	cmd.AddCommand(
		gateway.NewGatewayCommand(),
		agent.NewAgentCommand(),
		process.NewProcessCommand(),
		seen.NewSeenCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewZumoCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
