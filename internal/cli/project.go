package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/taskin/backend/internal/models"
)

func newProjectCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}
	cmd.AddCommand(newProjectAddCmd(o), newProjectListCmd(o), newProjectRmCmd(o))
	return cmd
}

func newProjectAddCmd(o *rootOptions) *cobra.Command {
	var color, description string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a project",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := o.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			project, err := a.Tasks.CreateProject(ctx, a.UserID, &models.Project{
				Name:        strings.Join(args, " "),
				Description: description,
				Color:       color,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", project.Name, mutedStyle.Render(string(project.ID)))
			return nil
		},
	}

	cmd.Flags().StringVar(&color, "color", "", "Hex color (default: "+models.DefaultProjectColor+")")
	cmd.Flags().StringVar(&description, "description", "", "Description")
	return cmd
}

func newProjectListCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := o.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			projects, err := a.Tasks.ListProjects(ctx, a.UserID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(projects) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("No projects."))
				return nil
			}
			for _, p := range projects {
				fmt.Fprintf(out, "%s %s\n", p.Name, mutedStyle.Render(string(p.ID)))
			}
			return nil
		},
	}
}

func newProjectRmCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a project; its tasks are kept and detached",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := o.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Tasks.DeleteProject(ctx, a.UserID, models.UUID(args[0])); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Deleted "+args[0]))
			return nil
		},
	}
}
