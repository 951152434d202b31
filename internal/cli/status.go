package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/taskin/backend/internal/sync"
)

const recentConflicts = 5

func newStatusCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync state, pending changes and recent conflicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := o.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			status := a.Scheduler.GetStatus(ctx)
			cursor, err := a.Repo.LastSyncAt(ctx)
			if err != nil {
				return err
			}

			printTitle(out, "taskin status")
			printField(out, "user", a.UserID)
			printField(out, "device", a.DeviceID)
			printField(out, "server", a.Config.Sync.ServerURL)

			state := string(status.EngineStatus)
			switch status.EngineStatus {
			case sync.SyncStatusFailed:
				state = errorStyle.Render(state)
			case sync.SyncStatusIdle:
				state = okStyle.Render(state)
			}
			printField(out, "engine", state)
			printField(out, "pending", status.PendingChanges)
			printField(out, "cursor", cursor)

			logs, err := a.Repo.ListConflictLogs(ctx, recentConflicts)
			if err != nil {
				return err
			}
			if len(logs) == 0 {
				return nil
			}
			fmt.Fprintln(out)
			printTitle(out, "Recent conflicts")
			for _, c := range logs {
				fmt.Fprintf(out, "%s %s %s local v%d / server v%d  %s\n",
					mutedStyle.Render(c.DetectedAt.String()),
					c.EntityType, c.EntityID, c.LocalVersion, c.ServerVersion,
					warnStyle.Render(c.Resolution))
			}
			return nil
		},
	}
}
