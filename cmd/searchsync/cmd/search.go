package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <indexed-type> [query...]",
		Short: "Search the index",
		Long: `Search documents of one indexed type. Without a query every document of
the type is listed, up to --limit.`,
		Example: `  searchsync search Place harbor view
  searchsync search Place --limit 50 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			s, err := attach(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			hits, err := s.Search(cmd.Context(), args[0], strings.Join(args[1:], " "), limit)
			if err != nil {
				return err
			}

			out := newOutput(cmd)
			if jsonOutput {
				return out.JSON(hits)
			}
			if len(hits) == 0 {
				out.Info("no matches")
				return nil
			}
			rows := make([][]string, len(hits))
			for i, h := range hits {
				rows[i] = []string{h.ID, h.IDField, fmt.Sprintf("%.3f", h.Score)}
			}
			out.Table([]string{"ID", "ID FIELD", "SCORE"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
