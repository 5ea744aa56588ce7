package process

import (
	"github.com/spf13/cobra"
)

func NewProcessCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Answer a single message read from a JSON file",
		Args:  cobra.NoArgs,
		Example: `  zumo process --input entrada.json
  zumo process --input entrada.json --dry-run`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return processCmd(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "entrada.json",
		`File holding {"numero": ..., "mensagem": ...}`)
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false,
		"Print the reply instead of sending it")

	return cmd
}
