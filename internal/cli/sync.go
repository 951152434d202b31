package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/taskin/backend/internal/sync"
)

func newSyncCmd(o *rootOptions) *cobra.Command {
	var teams bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle now, then generate due recurring instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := o.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Scheduler.SyncNow(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printSyncResult(out, result)

			if teams {
				n, err := a.Engine.RefreshTeams(ctx)
				if err != nil {
					return err
				}
				printField(out, "teams", n)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&teams, "teams", false, "Also refresh team memberships")
	return cmd
}

func printSyncResult(out io.Writer, r *sync.SyncResult) {
	printTitle(out, "Sync complete")
	printField(out, "pushed", r.Pushed)
	printField(out, "received", r.Received)
	printField(out, "applied", r.Applied)
	if r.Skipped > 0 {
		printField(out, "skipped", warnStyle.Render(fmt.Sprint(r.Skipped)))
	}
	if r.Conflicts > 0 {
		printField(out, "conflicts", warnStyle.Render(fmt.Sprint(r.Conflicts)))
	}
	if r.Requeued > 0 {
		printField(out, "requeued", r.Requeued)
	}
	printField(out, "pruned", r.Pruned)
	printField(out, "cursor", r.Cursor)
	printField(out, "duration", r.Duration)
}
