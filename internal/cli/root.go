// Package cli implements the taskin command tree.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/taskin/backend/internal/app"
	"github.com/kimhsiao/taskin/backend/internal/config"
)

// rootOptions holds the global flags shared by every subcommand.
type rootOptions struct {
	configPath string
	verbose    bool
}

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	o := &rootOptions{}

	root := &cobra.Command{
		Use:   "taskin",
		Short: "taskin - offline-first tasks with delta sync",
		Long: `taskin keeps tasks in a local database, records every change, and
reconciles them with a remote authority when online.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&o.configPath, "config", "", "config file (default: ~/.taskin/config.yaml merged with ./.taskin/config.yaml)")
	root.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newInitCmd(o),
		newLoginCmd(o),
		newLogoutCmd(o),
		newSyncCmd(o),
		newStatusCmd(o),
		newGenerateCmd(o),
		newTaskCmd(o),
		newProjectCmd(o),
		newExportCmd(o),
		newImportCmd(o),
		newDaemonCmd(o),
	)
	return root
}

// Execute runs the command tree against os.Args.
func Execute(version string) error {
	root := NewRootCmd(version)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		return err
	}
	return nil
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFrom(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// openApp loads the config and opens the local store. The caller closes the
// returned App.
func (o *rootOptions) openApp(ctx context.Context) (*app.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	app.InitLogging(cfg, os.Stderr)
	return app.Open(ctx, cfg, app.Options{})
}
