package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/taskin/backend/internal/export"
)

// passwordEnv supplies the archive password when --password is not given.
const passwordEnv = "TASKIN_EXPORT_PASSWORD"

func archivePassword(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(passwordEnv)
}

func newExportCmd(o *rootOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "export [path]",
		Short: "Write an encrypted backup of tasks, projects and categories",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := o.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			path := filepath.Join(filepath.Dir(a.Config.DataDir), "exports", export.DefaultFileName(time.Now()))
			if len(args) == 1 {
				path = args[0]
			}
			res, err := a.Backups.ExportFile(ctx, a.UserID, path, archivePassword(password))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printTitle(out, "Export complete")
			printField(out, "path", res.Path)
			printField(out, "tasks", res.Manifest.TaskCount)
			printField(out, "projects", res.Manifest.ProjectCount)
			printField(out, "categories", res.Manifest.CategoryCount)
			printField(out, "encrypted", res.Manifest.Encrypted)
			if !res.Manifest.Encrypted {
				fmt.Fprintln(out, warnStyle.Render("archive is not encrypted, pass --password or set "+passwordEnv))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Archive password (default $"+passwordEnv+")")
	return cmd
}

func newImportCmd(o *rootOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "import <path>",
		Short: "Merge a backup into the local store; newer rows are queued for sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := o.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Backups.ImportFile(ctx, a.UserID, args[0], archivePassword(password))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printTitle(out, "Import complete")
			printField(out, "imported", res.Imported)
			printField(out, "skipped", res.Skipped)
			printField(out, "exported_at", res.Manifest.ExportedAt)
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Archive password (default $"+passwordEnv+")")
	return cmd
}
