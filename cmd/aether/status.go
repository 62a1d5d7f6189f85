package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/aether"
	"github.com/aretw0/aether/pkg/adapters/fs"
)

var statusHistory int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the state of the store (and its recent git history)",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := openApp(aether.WithReadOnly(true))
		defer app.Close()
		ctx := context.Background()
		if userEmail != "" {
			u, ok, err := app.Directory.Lookup(ctx, userEmail)
			if err != nil {
				fatal("Failed to look up user", err)
			}
			if ok {
				app.Session.SignIn(u)
				if _, err := app.Board(ctx, u.ID); err != nil {
					fatal("Failed to load board", err)
				}
			}
		}

		printJSON(app.State())

		repo, ok := app.Store.(*fs.Repository)
		if !ok || statusHistory == 0 {
			return
		}
		commits, err := repo.History(ctx, "", statusHistory)
		if err != nil {
			fmt.Printf("\nNo history: %v\n", err)
			return
		}
		fmt.Println("\nHistory")
		for _, c := range commits {
			fmt.Printf("  %.8s  %s  %s\n", c.Hash, c.When.Format("2006-01-02 15:04"), c.Subject)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().IntVar(&statusHistory, "history", 10, "Number of commits to show (fs + git only)")
}
