package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sgs-catalog/internal/app"
	"github.com/JakeFAU/sgs-catalog/internal/catalog"
	"github.com/JakeFAU/sgs-catalog/internal/config"
	"github.com/JakeFAU/sgs-catalog/internal/logging"
	"github.com/JakeFAU/sgs-catalog/internal/pipeline"
)

// Exit codes.
const (
	exitFailure     = 1
	exitNoActive    = 2
	exitInterrupted = 130
)

// Services is what the commands need from the application container. It lets
// tests inject a fake.
type Services interface {
	Run(ctx context.Context) (pipeline.Result, error)
	Scan(ctx context.Context) ([]catalog.Candidate, error)
	Reset(ctx context.Context) error
	Close()
}

// newServices builds the full container; openCheckpoint builds only the
// checkpoint. Both are variables so tests can replace them.
var (
	newServices = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Services, error) {
		return app.New(ctx, cfg, logger, app.Options{})
	}
	openCheckpoint = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Services, error) {
		return app.OpenCheckpoint(ctx, cfg, logger)
	}
)

type settingsKeyType struct{}

// settings carries the loaded configuration and logger to subcommands.
type settings struct {
	cfg    config.Config
	logger *zap.Logger
}

type rootFlags struct {
	configPath string
	lo, hi     int
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "sgs-catalog",
		Short: "Discovers and catalogs the active series of the BCB SGS API.",
		Long: `sgs-catalog scans the SGS series-id space, classifies every id, enriches
the valid ones with their metadata and latest observation, and writes a catalog
of the series that are still maintained.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Config and logging are resolved once, before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			logger, err := logging.NewWithLevel(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), settingsKeyType{}, settings{cfg: cfg, logger: logger}))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().IntVar(&flags.lo, "lo", 0, "first series id to scan (overrides scan.lo)")
	cmd.PersistentFlags().IntVar(&flags.hi, "hi", 0, "last series id to scan (overrides scan.hi)")

	cmd.AddCommand(newBuildCmd(), newScanCmd(), newResetCmd())
	return cmd
}

func loadConfig(cmd *cobra.Command, flags *rootFlags) (config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("lo") {
		cfg.Scan.Lo = flags.lo
	}
	if cmd.Flags().Changed("hi") {
		cfg.Scan.Hi = flags.hi
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func resolveSettings(ctx context.Context) (settings, error) {
	s, ok := ctx.Value(settingsKeyType{}).(settings)
	if !ok || s.logger == nil {
		return settings{}, errors.New("configuration not initialized")
	}
	return s, nil
}

// Execute is the main entry point. It never returns.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err == nil {
		os.Exit(0)
	}
	code := exitCode(err)
	if code == exitInterrupted {
		fmt.Fprintln(os.Stderr, "sgs-catalog: interrupted; progress saved")
	} else {
		fmt.Fprintf(os.Stderr, "sgs-catalog: %v\n", err)
	}
	os.Exit(code)
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, catalog.ErrNoActiveSeries):
		return exitNoActive
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return exitFailure
	}
}
