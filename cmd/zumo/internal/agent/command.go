package agent

import (
	"github.com/spf13/cobra"
)

func NewAgentCommand() *cobra.Command {
	var (
		message string
		model   string
		debug   bool
	)

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Talk to the reply generator directly",
		Args:  cobra.NoArgs,
		Example: `  zumo agent -m "qual a capital da frança"
  zumo agent`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return agentCmd(cmd.Context(), message, model, debug)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Send a single message (non-interactive mode)")
	cmd.Flags().StringVar(&model, "model", "", "Override the configured model")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}
