package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchsync/pkg/searchsync"
)

func newSyncCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Apply pending changes once and exit",
		Long: `Run a single poller tick: read up to poller.batch_size capture rows, apply
them to the index and consume them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := searchsync.New(cmd.Context(), searchsync.Options{Config: cfg, Lock: true})
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.SyncOnce(cmd.Context())
			if err != nil {
				return err
			}

			out := newOutput(cmd)
			if jsonOutput {
				return out.JSON(res)
			}
			if res.Taken == 0 {
				out.Info("nothing to sync")
				return nil
			}
			out.Successf("applied %d events from %d capture rows", res.Events, res.Taken)
			out.Table([]string{"INDEXED", "UPDATED", "DELETED", "DOWNGRADED", "SKIPPED"}, [][]string{{
				fmt.Sprint(res.Stats.Indexed),
				fmt.Sprint(res.Stats.Updated),
				fmt.Sprint(res.Stats.Deleted),
				fmt.Sprint(res.Stats.Downgraded),
				fmt.Sprint(res.Stats.Skipped),
			}})
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the tick result as JSON")

	return cmd
}
