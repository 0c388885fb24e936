package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/sgs-catalog/internal/catalog"
)

// newScanCmd creates the 'scan' subcommand: Phase 1 only.
func newScanCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Classifies the id range without enriching it",
		Long: `Probes every unresolved id in the configured range and records its
classification in the checkpoint. The checkpoint is kept so a later 'build'
starts directly at enrichment.`,
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
			candidates, err := svc.Scan(cmd.Context())
			if err != nil {
				return err
			}
			daily := 0
			for _, c := range candidates {
				if c.Class == catalog.ClassDaily {
					daily++
				}
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d valid series (%d daily) in [%d, %d]\n",
				len(candidates), daily, s.cfg.Scan.Lo, s.cfg.Scan.Hi)
			return err
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "discard the checkpoint before scanning")
	return cmd
}
