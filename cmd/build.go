package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newBuildCmd creates the 'build' subcommand: scan, enrich, classify and write.
func newBuildCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Runs the full discovery pipeline and writes the catalog",
		Long: `Scans the configured id range (resuming from the checkpoint), enriches the
valid series, keeps the ones that are still active and writes the catalog. The
checkpoint is cleared once the catalog is written.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := resolveSettings(cmd.Context())
			if err != nil {
				return err
			}
			svc, err := newServices(cmd.Context(), s.cfg, s.logger)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			defer svc.Close()

			if reset {
				if err := svc.Reset(cmd.Context()); err != nil {
					return fmt.Errorf("reset checkpoint: %w", err)
				}
			}
			res, err := svc.Run(cmd.Context())
			if err != nil {
				return err
			}
			s.logger.Info("catalog ready",
				zap.String("run_id", res.RunID),
				zap.String("uri", res.Receipt.URI),
				zap.Int("records", res.Receipt.Records),
			)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d records\t%s\n", res.Receipt.URI, res.Receipt.Records, res.Receipt.Digest)
			return err
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "discard the checkpoint and rescan the whole range")
	return cmd
}
