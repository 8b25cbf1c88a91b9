package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchsync/internal/config"
	"github.com/Aman-CERP/searchsync/internal/logging"
	"github.com/Aman-CERP/searchsync/internal/output"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	noColor bool
	logFile string
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View the poller log",
		Long: `Show the last lines of the log written by 'searchsync run', or follow it.

The file is logging.file from the configuration when a configuration is
found, ~/.searchsync/logs/searchsync.log otherwise.`,
		Example: `  searchsync logs -n 100
  searchsync logs -f --level warn
  searchsync logs --filter "tick failed"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Only lines matching this regular expression")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&opts.logFile, "file", "", "Path to the log file")

	return cmd
}

// logPath picks --file, then logging.file, then the default path.
func logPath(opts logsOptions) string {
	if opts.logFile != "" {
		return opts.logFile
	}
	if dir, err := os.Getwd(); err == nil {
		if cfg, err := config.Load(dir, configPath); err == nil && cfg.Logging.File != "" {
			return cfg.Logging.File
		}
	}
	return logging.DefaultLogPath()
}

func runLogs(cmd *cobra.Command, opts logsOptions) error {
	if opts.lines <= 0 {
		return fmt.Errorf("--lines must be positive, got %d", opts.lines)
	}
	if opts.level != "" && !logging.ValidLevel(opts.level) {
		return fmt.Errorf("unknown level %q", opts.level)
	}
	var pattern *regexp.Regexp
	if opts.filter != "" {
		var err error
		if pattern, err = regexp.Compile(opts.filter); err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	path := logPath(opts)
	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   opts.level,
		Pattern: pattern,
		NoColor: opts.noColor || !output.IsTTY(cmd.OutOrStdout()),
	}, cmd.OutOrStdout())

	fmt.Fprintf(cmd.ErrOrStderr(), "Log file: %s\n", path)

	entries, err := viewer.Tail(path, opts.lines)
	if err != nil {
		return err
	}
	viewer.Print(entries)
	if !opts.follow {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return follow(ctx, cmd, viewer, path)
}

func follow(ctx context.Context, cmd *cobra.Command, viewer *logging.Viewer, path string) error {
	entries := make(chan logging.LogEntry, 100)
	errCh := make(chan error, 1)
	go func() {
		errCh <- viewer.Follow(ctx, path, entries)
	}()

	for {
		select {
		case e := <-entries:
			fmt.Fprintln(cmd.OutOrStdout(), viewer.Format(e))
		case err := <-errCh:
			return err
		}
	}
}
