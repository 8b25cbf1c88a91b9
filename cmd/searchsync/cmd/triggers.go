package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchsync/internal/capture"
	"github.com/Aman-CERP/searchsync/internal/config"
	"github.com/Aman-CERP/searchsync/internal/database"
	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/eventmodel"
	"github.com/Aman-CERP/searchsync/internal/triggers"
)

func newTriggersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "triggers",
		Short: "Manage capture tables and triggers",
		Long: `Install, remove or print the capture tables and triggers generated for the
configured entities. Statements run one at a time; a failing statement is
reported and the rest still run.`,
	}

	cmd.AddCommand(newTriggersInstallCmd())
	cmd.AddCommand(newTriggersUninstallCmd())
	cmd.AddCommand(newTriggersPrintCmd())

	return cmd
}

func newTriggersInstallCmd() *cobra.Command {
	var strategy string

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Create capture tables and triggers",
		Example: `  # Recreate everything from scratch
  searchsync triggers install --strategy drop-create`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withInstaller(cmd.Context(), func(inst *triggers.Installer, cfg *config.Config, model []eventmodel.EventModelInfo) error {
				st := cfg.Triggers.Strategy
				if strategy != "" {
					st = strategy
				}
				parsed, err := triggers.ParseStrategy(st)
				if err != nil {
					return err
				}
				report, err := inst.Install(cmd.Context(), model, parsed)
				if err != nil {
					return err
				}
				printReport(cmd, "installed", report)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "create or drop-create (default: triggers.strategy)")

	return cmd
}

func newTriggersUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Drop triggers and capture tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withInstaller(cmd.Context(), func(inst *triggers.Installer, _ *config.Config, model []eventmodel.EventModelInfo) error {
				report, err := inst.Uninstall(cmd.Context(), model)
				if err != nil {
					return err
				}
				printReport(cmd, "uninstalled", report)
				return nil
			})
		},
	}
}

func newTriggersPrintCmd() *cobra.Command {
	var strategy string

	cmd := &cobra.Command{
		Use:   "print",
		Short: "Print the SQL that install would run",
		Long: `Print the capture table and trigger statements without connecting to the
database, for review or for applying them with other tooling.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			src, err := triggers.SourceForDialect(cfg.Triggers.Dialect)
			if err != nil {
				return err
			}
			model, err := cfg.BuildModel()
			if err != nil {
				return err
			}
			st := cfg.Triggers.Strategy
			if strategy != "" {
				st = strategy
			}
			parsed, err := triggers.ParseStrategy(st)
			if err != nil {
				return err
			}
			for _, stmt := range triggers.Statements(src, model, parsed) {
				fmt.Fprintln(cmd.OutOrStdout(), stmt+";")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "create, drop-create or dont-create (default: triggers.strategy)")

	return cmd
}

// withInstaller opens the configured database and hands fn an installer for
// its dialect that resets the offsets of every capture table it drops.
func withInstaller(ctx context.Context, fn func(*triggers.Installer, *config.Config, []eventmodel.EventModelInfo) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	src, err := triggers.SourceForDialect(cfg.Triggers.Dialect)
	if err != nil {
		return err
	}
	model, err := cfg.BuildModel()
	if err != nil {
		return err
	}
	consume, err := capture.ParseConsumeMode(cfg.Poller.Consume)
	if err != nil {
		return err
	}

	retry := serrors.DefaultRetryConfig()
	retry.MaxRetries = cfg.Database.ConnectRetries
	db, err := database.Open(ctx, database.Options{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
		Retry:  retry,
		Logger: slog.Default(),
	})
	if err != nil {
		return err
	}
	defer db.Close()

	offsets := capture.NewOffsets(db, cfg.Triggers.Dialect, src.QuoteToken(), consume, model)
	inst := triggers.NewInstaller(src, db, slog.Default(), triggers.WithOffsetResetter(offsets))
	return fn(inst, cfg, model)
}

func printReport(cmd *cobra.Command, verb string, report triggers.InstallReport) {
	out := newOutput(cmd)
	if report.Failed == 0 {
		out.Successf("%s: %d statements executed", verb, report.Executed)
		return
	}
	out.Warningf("%s: %d statements executed, %d failed (see log)", verb, report.Executed, report.Failed)
}
