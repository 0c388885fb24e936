package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newResetCmd creates the 'reset' subcommand.
func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Deletes the scan checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := resolveSettings(cmd.Context())
			if err != nil {
				return err
			}
			svc, err := openCheckpoint(cmd.Context(), s.cfg, s.logger)
			if err != nil {
				return fmt.Errorf("open checkpoint: %w", err)
			}
			defer svc.Close()
			if err := svc.Reset(cmd.Context()); err != nil {
				return fmt.Errorf("reset checkpoint: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "checkpoint cleared")
			return err
		},
	}
}
