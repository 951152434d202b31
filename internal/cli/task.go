package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/taskin/backend/internal/db"
	"github.com/kimhsiao/taskin/backend/internal/models"
	"github.com/kimhsiao/taskin/backend/internal/notes"
)

func newTaskCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}
	cmd.AddCommand(
		newTaskAddCmd(o),
		newTaskListCmd(o),
		newTaskShowCmd(o),
		newTaskDoneCmd(o),
		newTaskRmCmd(o),
	)
	return cmd
}

func newTaskAddCmd(o *rootOptions) *cobra.Command {
	var (
		due       string
		priority  string
		notesText string
		recurring string
		project   string
		category  string
	)

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := o.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			draft := &models.Task{
				Title:      strings.Join(args, " "),
				Notes:      notesText,
				Priority:   models.Priority(priority),
				ProjectID:  models.UUID(project),
				CategoryID: models.UUID(category),
			}
			if due == "" {
				draft.DueDate = a.Generator.Today()
			} else if draft.DueDate, err = models.ParseDate(due); err != nil {
				return fmt.Errorf("invalid --due: %w", err)
			}
			if recurring != "" {
				draft.IsRecurring = true
				draft.RecurrencePattern = models.RecurrencePattern(recurring)
			}

			task, err := a.Tasks.CreateTask(ctx, a.UserID, draft)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), taskLine(task))
			return nil
		},
	}

	cmd.Flags().StringVar(&due, "due", "", "Due date YYYY-MM-DD (default: today)")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "low, medium or high (default: medium)")
	cmd.Flags().StringVar(&notesText, "notes", "", "Free-form notes")
	cmd.Flags().StringVar(&recurring, "recurring", "", "daily, weekly or monthly")
	cmd.Flags().StringVar(&project, "project", "", "Project id")
	cmd.Flags().StringVar(&category, "category", "", "Category id")
	return cmd
}

func newTaskListCmd(o *rootOptions) *cobra.Command {
	var (
		all    bool
		status []string
		search string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks by due date",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := o.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			filter := &db.TaskFilter{Search: search, HideCompleted: !all && len(status) == 0}
			for _, s := range status {
				filter.Statuses = append(filter.Statuses, models.TaskStatus(s))
			}
			tasks, err := a.Tasks.ListTasks(ctx, a.UserID, filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(tasks) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("No tasks."))
				return nil
			}
			for _, t := range tasks {
				fmt.Fprintln(out, taskLine(t))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include completed tasks")
	cmd.Flags().StringSliceVar(&status, "status", nil, "Only these statuses")
	cmd.Flags().StringVar(&search, "search", "", "Match title, description or notes")
	return cmd
}

func newTaskShowCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task with its notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := o.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			t, err := a.Tasks.GetTask(ctx, models.UUID(args[0]))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printTitle(out, t.Title)
			printField(out, "id", t.ID)
			printField(out, "due", t.DueDate)
			printField(out, "status", t.Status)
			printField(out, "priority", priorityStyle(t.Priority).Render(string(t.Priority)))
			printField(out, "progress", fmt.Sprintf("%d%%", t.ProgressPercentage))
			printField(out, "version", t.Version)
			if t.IsRecurring {
				printField(out, "repeats", t.RecurrencePattern)
			}
			if t.Notes != "" {
				fmt.Fprintln(out)
				fmt.Fprintln(out, notes.PlainText(t.Notes))
			}
			return nil
		},
	}
}

func newTaskDoneCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Mark a task done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := o.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			task, err := a.Tasks.CompleteTask(ctx, a.UserID, models.UUID(args[0]))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, taskLine(task))

			next, exists, err := a.Generator.NextAfterCompletion(ctx, a.UserID, task)
			if err != nil {
				return err
			}
			if !next.IsZero() {
				state := "generated on schedule"
				if exists {
					state = "already generated"
				}
				printField(out, "next", next.String()+" ("+state+")")
			}
			return nil
		},
	}
}

func newTaskRmCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := o.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Tasks.DeleteTask(ctx, a.UserID, models.UUID(args[0])); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Deleted "+args[0]))
			return nil
		},
	}
}
