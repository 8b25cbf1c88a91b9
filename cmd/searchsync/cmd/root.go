// Package cmd provides the CLI commands for searchsync.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchsync/internal/config"
	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/logging"
	"github.com/Aman-CERP/searchsync/internal/output"
	"github.com/Aman-CERP/searchsync/internal/profiling"
	"github.com/Aman-CERP/searchsync/internal/store"
	"github.com/Aman-CERP/searchsync/internal/triggers"
	"github.com/Aman-CERP/searchsync/pkg/searchsync"
	"github.com/Aman-CERP/searchsync/pkg/version"
)

// Global flags
var (
	configPath     string
	debugMode      bool
	loggingCleanup func()
	profileOpts    profiling.Options
	profile        *profiling.Session
)

// NewRootCmd creates the root command for the searchsync CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "searchsync",
		Short: "Keep a search index in sync with database tables",
		Long: `searchsync captures inserts, updates and deletes of database tables with
triggers and applies them to a full-text index.

Configuration is read from searchsync.yaml in the current directory, or from
the file named by --config.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("searchsync version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.searchsync/logs/")
	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newTriggersCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newPurgeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts requested profiles and sends warnings to
// stderr, or everything to the debug log file when --debug is set. The run
// command replaces the logger with the configured daemon logger.
func startProfilingAndLogging(cmd *cobra.Command, _ []string) error {
	if profileOpts.Enabled() {
		var err error
		if profile, err = profiling.Start(profileOpts); err != nil {
			return err
		}
	}

	cfg := logging.Config{Level: "warn", Stderr: cmd.ErrOrStderr()}
	if debugMode {
		cfg = logging.DefaultConfig()
		cfg.Level = "debug"
		cfg.Stderr = nil
	}
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	if debugMode {
		slog.Info("debug logging enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Version))
	}
	return nil
}

func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error
	if profile != nil {
		err = profile.Stop()
		profile = nil
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// Execute runs the root command and prints a failure the way the error
// package formats it for terminals.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, serrors.FormatForCLI(err))
	}
	return err
}

// loadConfig reads the configuration for the current directory or --config.
func loadConfig() (*config.Config, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return config.Load(dir, configPath)
}

// attach opens a Sync that leaves the database schema alone, for commands
// that only inspect or edit the index. A bleve index admits one process at
// a time, so it takes the index lock and fails fast while `run` holds it.
func attach(ctx context.Context) (*searchsync.Sync, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Triggers.Strategy = string(triggers.StrategyDontCreate)
	return searchsync.New(ctx, searchsync.Options{
		Config: cfg,
		Logger: slog.Default(),
		Lock:   cfg.Index.Backend == store.BackendBleve,
	})
}

func newOutput(cmd *cobra.Command) *output.Writer {
	return output.New(cmd.OutOrStdout())
}
