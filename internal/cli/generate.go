package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newGenerateCmd(o *rootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Create due recurring task instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := o.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if dryRun {
				summaries, err := a.Generator.Summary(ctx, a.UserID)
				if err != nil {
					return err
				}
				printTitle(out, "Pending recurring instances (dry run)")
				if len(summaries) == 0 {
					fmt.Fprintln(out, mutedStyle.Render("Nothing due."))
					return nil
				}
				for _, s := range summaries {
					dates := make([]string, len(s.DueDates))
					for i, d := range s.DueDates {
						dates[i] = d.String()
					}
					line := fmt.Sprintf("%s (%s): %s", s.Title, s.Pattern, strings.Join(dates, ", "))
					if s.Capped {
						line += warnStyle.Render(" [capped]")
					}
					fmt.Fprintln(out, line)
				}
				return nil
			}

			created, err := a.Generator.GenerateDueRecurringInstances(ctx, a.UserID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %d recurring instance(s) created\n", okStyle.Render("✓"), created)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List what would be created without writing")
	return cmd
}
