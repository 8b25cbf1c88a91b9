package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show capture progress and index contents",
		Long: `Show, for every capture table, the last consumed key and the number of rows
still pending, followed by the document count of every indexed type.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := attach(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := s.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := newOutput(cmd)
			if jsonOutput {
				return out.JSON(st)
			}

			rows := make([][]string, 0, len(st.Tables))
			var pending int64
			for _, t := range st.Tables {
				pending += t.Pending
				rows = append(rows, []string{t.Table, t.Entity, fmt.Sprint(t.LastKey), fmt.Sprint(t.Pending)})
			}
			out.Table([]string{"CAPTURE TABLE", "ENTITY", "LAST KEY", "PENDING"}, rows)
			fmt.Fprintln(cmd.OutOrStdout())

			rows = rows[:0]
			for _, ix := range st.Indexes {
				rows = append(rows, []string{ix.IndexedType, fmt.Sprint(ix.Documents)})
			}
			out.Table([]string{"INDEXED TYPE", "DOCUMENTS"}, rows)

			if pending > 0 {
				out.Warningf("%d capture rows pending", pending)
			} else {
				out.Success("index is up to date")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
