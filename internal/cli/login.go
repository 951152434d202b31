package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLoginCmd(o *rootOptions) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the bearer token used against the authority",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				return fmt.Errorf("--token is required")
			}
			a, err := o.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Tokens.SetToken(cmd.Context(), token); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Token stored."))
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Bearer token")
	return cmd
}

func newLogoutCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Tokens.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Token removed."))
			return nil
		},
	}
}
