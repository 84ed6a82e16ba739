package main

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the identity of the active account",
	RunE: func(cmd *cobra.Command, args []string) error {
		authenticator, _, err := buildAuthenticator()
		if err != nil {
			return err
		}
		if !authenticator.IsAuthenticated() {
			fmt.Println("Not logged in. Run 'hubcli auth login' to authenticate.")
			return nil
		}

		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = " Checking authentication status..."
		s.Start()
		info, err := authenticator.FetchUserInfo(cmd.Context())
		s.Stop()

		if err != nil {
			// The token exists but identity could not be confirmed.
			fmt.Printf("Logged in, but the identity check failed: %v\n", err)
			return nil
		}
		fmt.Printf("Logged in as %s", info.Login)
		if info.Name != "" {
			fmt.Printf(" (%s)", info.Name)
		}
		fmt.Println()
		if info.Email != "" {
			fmt.Printf("Email: %s\n", info.Email)
		}
		return nil
	},
}
