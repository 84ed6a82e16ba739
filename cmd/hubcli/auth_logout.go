package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out of the active account",
	RunE: func(cmd *cobra.Command, args []string) error {
		authenticator, _, err := buildAuthenticator()
		if err != nil {
			return err
		}
		if !authenticator.Logout() {
			fmt.Println("Not currently authenticated.")
			return nil
		}
		fmt.Println("Logged out.")
		return nil
	},
}
