package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/aether/pkg/core"
	"github.com/aretw0/aether/pkg/dashboard"
	"github.com/aretw0/aether/pkg/ledger"
)

var xpRecent int

var xpCmd = &cobra.Command{
	Use:   "xp",
	Short: "Show level, progress and recent XP activity",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := openApp()
		defer app.Close()
		ctx := context.Background()
		user := signIn(ctx, app)

		progress, err := app.Ledger.Summary(ctx, user.ID)
		if err != nil {
			fatal("Failed to read ledger", err)
		}
		recent, err := app.Ledger.Recent(ctx, user.ID, xpRecent)
		if err != nil {
			fatal("Failed to read ledger", err)
		}

		if jsonOutput {
			printJSON(struct {
				Progress ledger.Progress    `json:"progress"`
				Recent   []core.LedgerEntry `json:"recent"`
			}{progress, recent})
			return
		}
		printProgress(user, progress)
		printActivity(recent)
	},
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Progress, recent activity, recent captures and the value mandala",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := openApp()
		defer app.Close()
		ctx := context.Background()
		user := signIn(ctx, app)

		snap, err := app.Dashboard.Snapshot(ctx, user.ID)
		if err != nil {
			fatal("Failed to build dashboard", err)
		}
		if jsonOutput {
			printJSON(snap)
			return
		}

		printProgress(user, snap.Progress)
		printActivity(snap.RecentActivity)

		fmt.Println("\nRecent captures")
		for _, c := range snap.RecentCaptures {
			fmt.Printf("  %s  %s\n", c.CreatedAt.Format("2006-01-02"), c.Text())
		}

		fmt.Println("\nMandala")
		for _, p := range snap.Mandala {
			fmt.Printf("  %-20s %s %d\n", p.Name, strings.Repeat("*", p.Count), p.Count)
		}
	},
}

func printProgress(user core.User, p ledger.Progress) {
	const width = 20
	filled := min(max(int(p.Fraction*width), 0), width)
	fmt.Printf("%s: level %d, %d XP\n", user.DisplayName(), p.Level, p.TotalXP)
	fmt.Printf("[%s%s] %d/%d, %d to level %d\n",
		strings.Repeat("#", filled), strings.Repeat(".", width-filled),
		p.CurrentLevelXP, ledger.LevelSize, p.ToNextLevel, p.Level+1)
}

func printActivity(entries []core.LedgerEntry) {
	fmt.Println("\nRecent activity")
	if len(entries) == 0 {
		fmt.Println("  (none)")
	}
	for _, e := range entries {
		fmt.Printf("  %s  %+4d  %s\n", e.CreatedAt.Format("2006-01-02 15:04"), e.Delta, e.SourceDescription)
	}
}

func init() {
	rootCmd.AddCommand(xpCmd, dashboardCmd)
	xpCmd.Flags().IntVarP(&xpRecent, "recent", "n", dashboard.RecentLimit, "Number of recent entries")
}
