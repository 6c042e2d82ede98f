package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/freeoffice/fieldcam/internal/config"
)

func newLoginCmd(a *app) *cobra.Command {
	var staffCode, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with a staff code and persist the session",
		Example: `  # Prompt for the password
  fieldcam login --staff NV042

  # Read the password from the environment
  FIELDCAM_PASSWORD=secret fieldcam login --staff NV042`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(config.EnvPrefix + "PASSWORD")
			}
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			c, err := a.client()
			if err != nil {
				return err
			}
			user, err := c.Login(cmd.Context(), staffCode, password)
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), user)
		},
	}

	cmd.Flags().StringVar(&staffCode, "staff", "", "Staff code (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password (or FIELDCAM_PASSWORD, prompted when empty)")
	_ = cmd.MarkFlagRequired("staff")

	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the persisted session",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			if err := c.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in staff member",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), c.User())
		},
	}
}
