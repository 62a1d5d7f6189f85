package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/aether/pkg/capture"
	"github.com/aretw0/aether/pkg/core"
)

var (
	captureLink  string
	captureKind  string
	captureLimit int
	captureOld   bool
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Record thoughts and links",
}

var captureAddCmd = &cobra.Command{
	Use:   "add [text...]",
	Short: "Capture a thought, or a link with --link",
	Run: func(cmd *cobra.Command, args []string) {
		app := openApp()
		defer app.Close()
		ctx := context.Background()
		user := signIn(ctx, app)

		text := strings.Join(args, " ")
		var (
			c   core.Capture
			err error
		)
		if captureLink != "" {
			c, err = app.Captures.CreateLink(ctx, user.ID, captureLink, text)
		} else {
			c, err = app.Captures.Create(ctx, user.ID, core.KindThought, text)
		}
		if err != nil {
			fatal("Failed to capture", err)
		}

		if jsonOutput {
			printJSON(c)
			return
		}
		fmt.Printf("Captured %s %s\n", strings.ToLower(string(c.Kind)), c.ID)
	},
}

var captureListCmd = &cobra.Command{
	Use:   "list",
	Short: "List captures, newest first",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := openApp()
		defer app.Close()
		ctx := context.Background()
		user := signIn(ctx, app)

		f := capture.Filter{Ascending: captureOld}
		if captureKind != "" {
			kind, err := core.ParseCaptureKind(captureKind)
			if err != nil {
				fatal("Invalid --kind", err)
			}
			f.Kind = kind
		}
		items, err := app.Captures.List(ctx, user.ID, f)
		if err != nil {
			fatal("Failed to list captures", err)
		}
		if captureLimit > 0 && len(items) > captureLimit {
			items = items[:captureLimit]
		}

		if jsonOutput {
			printJSON(items)
			return
		}
		for _, c := range items {
			fmt.Printf("%s  %s  %-13s %s\n", c.ID, c.CreatedAt.Format("2006-01-02 15:04"), c.Kind, c.Text())
		}
	},
}

var captureDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a capture without resonances",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := openApp()
		defer app.Close()
		ctx := context.Background()
		user := signIn(ctx, app)

		if err := app.Captures.Delete(ctx, user.ID, args[0]); err != nil {
			fatal("Failed to delete capture", err)
		}
		fmt.Printf("Capture '%s' deleted.\n", args[0])
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.AddCommand(captureAddCmd, captureListCmd, captureDeleteCmd)

	captureAddCmd.Flags().StringVar(&captureLink, "link", "", "Capture this URL; the text becomes its note")
	captureListCmd.Flags().StringVar(&captureKind, "kind", "", `Only "thought" or "link" captures`)
	captureListCmd.Flags().IntVarP(&captureLimit, "limit", "n", 0, "Show at most n captures")
	captureListCmd.Flags().BoolVar(&captureOld, "oldest-first", false, "Sort ascending by creation time")
}
