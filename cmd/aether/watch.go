package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/aether"
	adapterlifecycle "github.com/aretw0/aether/pkg/adapters/lifecycle"
	"github.com/aretw0/aether/pkg/core"
)

var watchTables string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream row changes, including edits made outside aether",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app := openApp(aether.WithWatch(true))
		defer app.Close()

		notifier, ok := app.Store.(core.Notifier)
		if !ok {
			fatal("Cannot watch", fmt.Errorf("store %T has no change feed", app.Store))
		}
		var filters []core.Filter
		if userEmail != "" {
			filters = append(filters, core.Eq("user_id", signIn(ctx, app).ID))
		}

		source := adapterlifecycle.NewSource(notifier, watchTables, filters...)
		if err := source.Start(ctx); err != nil {
			fatal("Failed to watch", err)
		}
		fmt.Fprintf(os.Stderr, "Watching %q (Ctrl+C to stop)\n", watchTables)

		for ev := range source.Events() {
			if e, ok := ev.(core.Event); ok && jsonOutput {
				printJSON(e)
				continue
			}
			fmt.Println(ev.String())
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchTables, "tables", "*", "Glob over table names")
}
