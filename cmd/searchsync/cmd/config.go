package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchsync/configs"
	"github.com/Aman-CERP/searchsync/internal/config"
	"github.com/Aman-CERP/searchsync/internal/database"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Inspect and create searchsync configuration files.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/searchsync/config.yaml)
  3. Project config (searchsync.yaml) or --config
  4. Environment variables (SEARCHSYNC_*)`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter configuration",
		Long: `Write an example configuration with one SQLite entity to path
(default searchsync.yaml). An existing file is kept unless --force is given,
in which case it is backed up first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ProjectFileNames[0]
			if len(args) == 1 {
				path = args[0]
			}
			out := newOutput(cmd)

			if _, err := os.Stat(path); err == nil && !force {
				out.Warningf("%s already exists", path)
				out.Info("use --force to overwrite it (a backup is kept)")
				return nil
			}

			backup, err := config.WriteFileWithBackup(path, []byte(configs.ProjectConfigTemplate), time.Now())
			if err != nil {
				return err
			}
			out.Successf("wrote %s", path)
			if backup != "" {
				out.Infof("backup: %s", backup)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Show the configuration after merging defaults, the user file, the project
file and environment variables. The database password is redacted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Database.DSN = database.RedactDSN(cfg.Database.Driver, cfg.Database.DSN)

			if jsonOutput {
				return newOutput(cmd).JSON(cfg)
			}
			data, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return nil
		},
	}
}
