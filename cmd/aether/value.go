package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/aether/pkg/resonance"
)

var (
	valueDescription string
	valueName        string
)

var valueCmd = &cobra.Command{
	Use:   "value",
	Short: "Manage the values captures resonate with",
}

var valueAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Define a value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := openApp()
		defer app.Close()
		ctx := context.Background()
		user := signIn(ctx, app)

		v, err := app.Resonance.CreateValue(ctx, user.ID, args[0], valueDescription)
		if err != nil {
			fatal("Failed to create value", err)
		}
		if jsonOutput {
			printJSON(v)
			return
		}
		fmt.Printf("Value '%s' created (%s).\n", v.Name, v.ID)
	},
}

var valueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List values with their resonance counts",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := openApp()
		defer app.Close()
		ctx := context.Background()
		user := signIn(ctx, app)

		values, err := app.Resonance.ListValues(ctx, user.ID)
		if err != nil {
			fatal("Failed to list values", err)
		}
		if jsonOutput {
			printJSON(values)
			return
		}
		for _, v := range values {
			line := fmt.Sprintf("%s  %-20s %3d", v.ID, v.Name, v.Resonances)
			if v.Description != nil {
				line += "  " + *v.Description
			}
			fmt.Println(line)
		}
	},
}

var valueEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Rename or re-describe a value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := openApp()
		defer app.Close()
		ctx := context.Background()
		user := signIn(ctx, app)

		var patch resonance.ValuePatch
		if cmd.Flags().Changed("name") {
			patch.Name = &valueName
		}
		if cmd.Flags().Changed("description") {
			patch.Description = &valueDescription
		}
		v, err := app.Resonance.UpdateValue(ctx, user.ID, args[0], patch)
		if err != nil {
			fatal("Failed to update value", err)
		}
		if jsonOutput {
			printJSON(v)
			return
		}
		fmt.Printf("Value '%s' updated.\n", v.Name)
	},
}

var valueDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a value nothing resonates with",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := openApp()
		defer app.Close()
		ctx := context.Background()
		user := signIn(ctx, app)

		if err := app.Resonance.DeleteValue(ctx, user.ID, args[0]); err != nil {
			fatal("Failed to delete value", err)
		}
		fmt.Printf("Value '%s' deleted.\n", args[0])
	},
}

var resonateReflection string

var resonateCmd = &cobra.Command{
	Use:   "resonate <capture-id> <value-id>",
	Short: "Link a capture to a value (+10 XP)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		app := openApp()
		defer app.Close()
		ctx := context.Background()
		user := signIn(ctx, app)

		link, err := app.Resonance.Resonate(ctx, user.ID, args[0], args[1], resonateReflection)
		if err != nil {
			// The link can exist even when the XP grant failed.
			if link.ID != "" {
				fmt.Printf("Resonance %s recorded without XP.\n", link.ID)
			}
			fatal("Failed to resonate", err)
		}
		if jsonOutput {
			printJSON(link)
			return
		}
		fmt.Printf("Resonance %s recorded (+%d XP).\n", link.ID, link.XPGranted)
	},
}

func init() {
	rootCmd.AddCommand(valueCmd, resonateCmd)
	valueCmd.AddCommand(valueAddCmd, valueListCmd, valueEditCmd, valueDeleteCmd)

	valueAddCmd.Flags().StringVarP(&valueDescription, "description", "d", "", "What the value means to you")
	valueEditCmd.Flags().StringVar(&valueName, "name", "", "New name")
	valueEditCmd.Flags().StringVarP(&valueDescription, "description", "d", "", "New description (empty clears it)")
	resonateCmd.Flags().StringVarP(&resonateReflection, "reflection", "r", "", "Why the capture resonates")
}
