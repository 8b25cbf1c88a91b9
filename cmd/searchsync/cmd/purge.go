package cmd

import (
	"github.com/spf13/cobra"
)

func newPurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge <entity> [id]",
		Short: "Remove documents from the index",
		Long: `Remove one entity from the index, or every document of the entity's
indexed types when no id is given. The database is not touched; the next
change to a purged row indexes it again.`,
		Example: `  searchsync purge Place 42
  searchsync purge Place`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := attach(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			out := newOutput(cmd)
			if len(args) == 1 {
				if err := s.PurgeAll(cmd.Context(), args[0]); err != nil {
					return err
				}
				out.Successf("purged all %s documents", args[0])
				return nil
			}
			if _, err := s.Purge(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			out.Successf("purged %s %s", args[0], args[1])
			return nil
		},
	}

	return cmd
}

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index <entity> <id>",
		Short: "Reindex one entity from its current row",
		Long: `Fetch the entity's current row and write it to the index. A row that no
longer exists is removed from the index instead.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := attach(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			stats, err := s.Index(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			out := newOutput(cmd)
			if stats.Downgraded > 0 {
				out.Warningf("%s %s no longer exists, removed from the index", args[0], args[1])
				return nil
			}
			out.Successf("indexed %s %s", args[0], args[1])
			return nil
		},
	}
}
