package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newLoginCmd() *cobra.Command {
	var configPath, token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the session token",
		Long:  "Stores a bearer token issued by RekaTrack in the session store. Every later request carries it until the server answers 401.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, configPath, token)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to courier config file")
	cmd.Flags().StringVar(&token, "token", "", "bearer token (default: $REKATRACK_TOKEN)")
	return cmd
}

func runLogin(cmd *cobra.Command, configPath, token string) error {
	if token == "" {
		token = os.Getenv("REKATRACK_TOKEN")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is required")
	}

	app, err := openApp(configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.state.SetToken(cmd.Context(), token); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Token disimpan")
	return nil
}

func newLogoutCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.state.ClearToken(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Token dihapus")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to courier config file")
	return cmd
}
