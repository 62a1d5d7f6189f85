package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/aether/pkg/demo"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the sample dataset into an empty account",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := openApp()
		defer app.Close()
		ctx := context.Background()
		user := signIn(ctx, app)

		res, err := app.Seed(ctx, user.ID)
		if errors.Is(err, demo.ErrAlreadySeeded) {
			fmt.Println("Account already has values; nothing seeded.")
			return
		}
		if err != nil {
			fatal("Failed to seed", err)
		}
		if jsonOutput {
			printJSON(res)
			return
		}
		fmt.Printf("Seeded %d values, %d captures, %d resonances and %d tasks.\n",
			res.Values, res.Captures, res.Resonances, res.Tasks)
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
