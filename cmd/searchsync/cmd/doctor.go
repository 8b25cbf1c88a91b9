package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchsync/internal/database"
	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that searchsync can run",
		Long: `Check the database connection, the capture tables and triggers of every
entity, and the index directory. Exits non-zero when a required check fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			model, err := cfg.BuildModel()
			if err != nil {
				return err
			}

			var opts []preflight.Option
			retry := serrors.DefaultRetryConfig()
			retry.MaxRetries = 0
			db, err := database.Open(cmd.Context(), database.Options{
				Driver: cfg.Database.Driver,
				DSN:    cfg.Database.DSN,
				Retry:  retry,
				Logger: slog.Default(),
			})
			if err == nil {
				defer db.Close()
				opts = append(opts, preflight.WithDatabase(db))
			}

			checker := preflight.New(cfg, model, opts...)
			results := checker.RunAll(cmd.Context())

			out := newOutput(cmd)
			if jsonOutput {
				if err := out.JSON(results); err != nil {
					return err
				}
			} else {
				checker.PrintResults(out, results, verbose)
			}
			if checker.HasCriticalFailures(results) {
				return fmt.Errorf("system check failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details and hints")

	return cmd
}
