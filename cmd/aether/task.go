package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/aether"
	"github.com/aretw0/aether/pkg/board"
	"github.com/aretw0/aether/pkg/core"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Work the TODO / DOING / DONE board",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <title...>",
	Short: "Add a task to TODO",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := openApp()
		defer app.Close()
		ctx := context.Background()
		b := userBoard(ctx, app)

		task, err := b.Create(ctx, strings.Join(args, " "))
		if err != nil {
			fatal("Failed to add task", err)
		}
		if jsonOutput {
			printJSON(task)
			return
		}
		fmt.Printf("Task '%s' added (%s).\n", task.Title, task.ID)
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the board",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := openApp()
		defer app.Close()
		ctx := context.Background()
		cols := userBoard(ctx, app).Columns()

		if jsonOutput {
			printJSON(cols)
			return
		}
		for _, status := range core.Statuses {
			fmt.Printf("%s (%d)\n", status, len(cols[status]))
			for _, t := range cols[status] {
				fmt.Printf("  %s  %s\n", t.ID, t.Title)
			}
		}
	},
}

var taskMoveCmd = &cobra.Command{
	Use:   "move <id> <todo|doing|done>",
	Short: "Move a task; entering DONE grants XP",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		status, err := core.ParseStatus(args[1])
		if err != nil {
			fatal("Invalid status", err)
		}

		app := openApp()
		defer app.Close()
		ctx := context.Background()
		b := userBoard(ctx, app)

		before, ok := b.Task(args[0])
		if !ok {
			fatal("Failed to move task", core.NotFound(core.TableActions, args[0]))
		}
		op, err := b.SetStatus(ctx, args[0], status)
		if err != nil {
			fatal("Failed to move task", err)
		}

		if jsonOutput {
			after, _ := b.Task(args[0])
			printJSON(struct {
				Task  core.Action       `json:"task"`
				From  core.Status       `json:"from"`
				State string            `json:"state"`
				Grant *core.LedgerEntry `json:"grant"`
			}{after, before.Status, op.State().String(), op.Grant})
			return
		}
		msg := fmt.Sprintf("Task '%s' moved to %s", before.Title, status)
		if op.Grant != nil {
			msg += fmt.Sprintf(" (+%d XP)", op.Grant.Delta)
		}
		fmt.Println(msg + ".")
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a task (its XP stays)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := openApp()
		defer app.Close()
		ctx := context.Background()

		if err := userBoard(ctx, app).Delete(ctx, args[0]); err != nil {
			fatal("Failed to delete task", err)
		}
		fmt.Printf("Task '%s' deleted.\n", args[0])
	},
}

func userBoard(ctx context.Context, app *aether.App) *board.Board {
	u := signIn(ctx, app)
	b, err := app.Board(ctx, u.ID)
	if err != nil {
		fatal("Failed to load board", err)
	}
	return b
}

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskMoveCmd, taskDeleteCmd)
}
