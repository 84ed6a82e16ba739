package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/waabox/hubcli/internal/auth"
)

var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := buildAuthenticator()
		if err != nil {
			return err
		}
		records := store.List()
		if len(records) == 0 {
			fmt.Println("No stored accounts. Run 'hubcli auth login' to add one.")
			return nil
		}
		renderAccountTable(records, store.ActiveID())
		return nil
	},
}

var authSwitchCmd = &cobra.Command{
	Use:   "switch <id>",
	Short: "Make a stored account the active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := buildAuthenticator()
		if err != nil {
			return err
		}
		id := args[0]
		if !store.SetActive(id) {
			return fmt.Errorf("no stored account with id %q — see 'hubcli auth list'", id)
		}
		fmt.Printf("Switched to account %s.\n", id)
		return nil
	},
}

var authRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete a stored account",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := buildAuthenticator()
		if err != nil {
			return err
		}
		id := args[0]
		if !store.Delete(id) {
			return fmt.Errorf("no stored account with id %q — see 'hubcli auth list'", id)
		}
		fmt.Printf("Removed account %s.\n", id)
		return nil
	},
	Args: cobra.ExactArgs(1),
}

// renderAccountTable prints the stored accounts with masked secrets.
func renderAccountTable(records []auth.TokenRecord, activeID string) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "NAME", "TOKEN", "SCOPES", "CREATED", "ACTIVE"})
	for _, r := range records {
		active := ""
		if r.ID == activeID {
			active = "*"
		}
		t.AppendRow(table.Row{
			r.ID,
			r.Name,
			auth.Mask(r.AccessToken),
			r.Scope,
			time.Unix(r.CreatedAt, 0).Format("2006-01-02"),
			active,
		})
	}
	t.Render()
}
