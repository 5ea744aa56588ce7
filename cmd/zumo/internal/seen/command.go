package seen

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/zumo/cmd/zumo/internal"
	seenstore "github.com/tinyland-inc/zumo/pkg/seen"
)

func NewSeenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seen",
		Short: "Inspect or reset the processed-message set",
		Example: `  zumo seen count
  zumo seen list
  zumo seen reset --force`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print every recorded message id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			for _, id := range store.IDs() {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}

	countCmd := &cobra.Command{
		Use:   "count",
		Short: "Print how many message ids are recorded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d ids in %s\n", store.Len(), store.Path())
			return nil
		},
	}

	var force bool
	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget every recorded message id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return resetStore(cmd.OutOrStdout(), force)
		},
	}
	resetCmd.Flags().BoolVar(&force, "force", false,
		"Required: replayed gateway messages may be answered again")

	cmd.AddCommand(listCmd, countCmd, resetCmd)

	return cmd
}

func openStore() (*seenstore.Store, error) {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	store := seenstore.NewStore(cfg.Intake.SeenFilePath(), cfg.Intake.PersistEvery)
	if err := store.Load(); err != nil {
		return nil, err
	}
	return store, nil
}

func resetStore(out io.Writer, force bool) error {
	if !force {
		return fmt.Errorf("refusing to reset without --force")
	}
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	// Load errors are ignored: a corrupt file is exactly what reset fixes.
	store := seenstore.NewStore(cfg.Intake.SeenFilePath(), cfg.Intake.PersistEvery)
	_ = store.Load()
	n := store.Len()

	store.Reset()
	if err := store.Persist(); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Cleared %d ids from %s\n", n, store.Path())
	return nil
}
