package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/taskin/backend/internal/config"
	"github.com/kimhsiao/taskin/backend/internal/uuid"
)

func newInitCmd(o *rootOptions) *cobra.Command {
	var (
		force  bool
		server string
		userID string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration",
		Long: `Write a configuration file with a fresh user and device id.

The file goes to --config when given, otherwise ~/.taskin/config.yaml.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := o.configPath
			if path == "" {
				path = config.GlobalConfigPath()
			}
			if path == "" {
				return fmt.Errorf("cannot resolve a config path, pass --config")
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			cfg := config.DefaultConfig()
			cfg.UserID = userID
			if cfg.UserID == "" {
				cfg.UserID = uuid.New()
			}
			if err := uuid.Validate(cfg.UserID); err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			cfg.DeviceID = uuid.New()
			if server != "" {
				cfg.Sync.ServerURL = server
			}

			if err := config.WriteDefault(path, cfg); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printTitle(out, "taskin initialized")
			printField(out, "config", path)
			printField(out, "user", cfg.UserID)
			printField(out, "device", cfg.DeviceID)
			printField(out, "server", cfg.Sync.ServerURL)
			fmt.Fprintln(out, mutedStyle.Render("Run `taskin login --token <token>` before the first sync."))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config")
	cmd.Flags().StringVar(&server, "server", "", "Authority base URL")
	cmd.Flags().StringVar(&userID, "user", "", "User id (default: generated)")
	return cmd
}
