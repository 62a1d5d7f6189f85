package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/aretw0/aether"
	"github.com/aretw0/aether/internal/config"
	"github.com/aretw0/aether/pkg/git"
)

var initNoGit bool

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a store (and git repository) with a default config",
	Long: `Initialize a new Aether store at --store (default: the current directory).
The file adapter also runs 'git init' unless --no-git is given or versioning
is disabled in the configuration.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		versioned := cfg.Store.Versioning && !initNoGit && git.IsInstalled()

		app, err := aether.Open(storePath,
			aether.WithAdapter(adapterName),
			aether.WithAutoInit(true),
			aether.WithVersioning(versioned),
			aether.WithCommitFooter(versioned),
			aether.WithLogger(slog.Default()),
		)
		if err != nil {
			fatal("Failed to initialize store", err)
		}
		defer app.Close()

		if err := config.WriteDefault(config.ProjectConfigPath()); err != nil {
			fatal("Failed to write configuration", err)
		}

		state := app.State().(aether.AppState)
		fmt.Printf("Initialized empty Aether store (%s) in %s\n", state.Adapter, storePath)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initNoGit, "no-git", false, "Do not version the file store with git")
}
