package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// NewRunsCmd creates the runs command.
func NewRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent digest runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := mustCLIContext(cmd)
			if err != nil {
				return err
			}
			if limit < 1 {
				return fmt.Errorf("--limit must be positive")
			}
			db, err := cliCtx.GetStorage()
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			runs, err := db.ListRuns(limit)
			if err != nil {
				return err
			}

			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs yet.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTARTED\tWINDOW\tSTATUS\tMESSAGES\tBATCHES\tERROR")
			fmt.Fprintln(w, "--\t-------\t------\t------\t--------\t-------\t-----")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s..%s\t%s\t%d\t%d\t%s\n",
					shortID(r.ID),
					r.StartedAt.Local().Format("2006-01-02 15:04"),
					r.WindowStart.Local().Format(time.DateTime),
					r.WindowEnd.Local().Format(time.DateTime),
					r.Status,
					r.Messages,
					r.Batches,
					truncate(r.Error, 60),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")

	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
