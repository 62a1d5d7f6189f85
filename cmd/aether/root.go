package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/aether"
	"github.com/aretw0/aether/internal/config"
	"github.com/aretw0/aether/pkg/core"
)

var (
	verbose     bool
	adapterName string
	storePath   string
	userEmail   string
	jsonOutput  bool

	cfg = config.DefaultConfig()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "aether",
	Short: "Capture thoughts, tag them with your values and earn XP for finished tasks",
	Long: `Aether Lite is a personal journal with a task board and an XP ledger.
Captures resonate with the values you define, tasks move from TODO to DONE,
and both feed the experience points that level you up.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)

		loaded, err := config.Load()
		if err != nil {
			fatal("Failed to load configuration", err)
		}
		cfg = loaded
		if adapterName == "" {
			adapterName = cfg.Store.Adapter
		}
		if storePath == "" && !cmd.Flags().Changed("store") {
			discoverStore(cmd)
		}
		if storePath == "" {
			storePath = cfg.Store.Path
		}
		if userEmail == "" {
			userEmail = cfg.User.Email
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&adapterName, "adapter", "", `Storage adapter: "fs", "sqlite" or "memory"`)
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "Store directory (fs) or database file (sqlite)")
	rootCmd.PersistentFlags().StringVarP(&userEmail, "user", "u", "", "Email of the user to act as")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

// discoverStore points the CLI at the store enclosing the working directory
// when neither the flag nor the configuration names one.
func discoverStore(cmd *cobra.Command) {
	if cmd.Name() == "init" || cfg.Store.Path != config.DefaultConfig().Store.Path {
		return
	}
	root, err := aether.LocateStore(".")
	if err != nil {
		return
	}
	storePath = root.Dir
	if !cmd.Flags().Changed("adapter") {
		adapterName = root.Adapter
	}
	slog.Debug("using enclosing store", "path", root.Dir, "adapter", root.Adapter)
}

// openApp opens an existing store with the global flags.
func openApp(extra ...aether.Option) *aether.App {
	opts := []aether.Option{
		aether.WithAdapter(adapterName),
		aether.WithLogger(slog.Default()),
	}
	if adapterName != aether.AdapterMemory {
		opts = append(opts, aether.WithMustExist(true))
	}
	app, err := aether.Open(storePath, append(opts, extra...)...)
	if err != nil {
		fatal("Failed to open store", err)
	}
	return app
}

// signIn makes the --user account current, registering it on first use.
func signIn(ctx context.Context, app *aether.App) core.User {
	if userEmail == "" {
		fatal("No user", fmt.Errorf("pass --user or set user.email in %s", config.ProjectConfigPath()))
	}
	u, err := app.SignIn(ctx, userEmail, cfg.User.Name)
	if err != nil {
		fatal("Failed to sign in", err)
	}
	return u
}

func printJSON(v any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fatal("Error encoding JSON", err)
	}
}
