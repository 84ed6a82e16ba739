package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/waabox/hubcli/internal/auth"
)

var (
	loginScopes string
	loginSSOOrg string
	loginName   string
)

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with the OAuth device flow",
	Long: `Log in to GitHub using the OAuth device flow.

A one-time code is shown in the terminal and the verification page opens in
your browser. The resulting token is stored under ~/.config/hubcli/ and
becomes the active account.

Examples:
  hubcli auth login
  hubcli auth login --scopes repo,gist --name "work account"
  hubcli auth login --sso my-org`,
	RunE: runAuthLogin,
}

func init() {
	authLoginCmd.Flags().StringVar(&loginScopes, "scopes", "", "comma-separated OAuth scopes (default: built-in scope set)")
	authLoginCmd.Flags().StringVar(&loginSSOOrg, "sso", "", "organization to authorize SSO for after login")
	authLoginCmd.Flags().StringVar(&loginName, "name", "", "label for the stored account")
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	authenticator, _, err := buildAuthenticator()
	if err != nil {
		return err
	}

	err = authenticator.Login(cmd.Context(), auth.LoginOptions{
		Scopes: loginScopes,
		SSOOrg: loginSSOOrg,
		Name:   loginName,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, auth.ErrCodeExpired):
		return fmt.Errorf("the one-time code expired before authorization completed — run 'hubcli auth login' again")
	case errors.Is(err, auth.ErrAccessDenied):
		return fmt.Errorf("authorization was denied in the browser")
	case errors.Is(err, auth.ErrPollTimeout):
		return fmt.Errorf("timed out waiting for authorization — run 'hubcli auth login' again")
	default:
		return fmt.Errorf("authentication failed: %w", err)
	}
}
