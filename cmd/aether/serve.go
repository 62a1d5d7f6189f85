package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/aether"
	"github.com/aretw0/aether/internal/httpapi"
	adapterlifecycle "github.com/aretw0/aether/pkg/adapters/lifecycle"
	"github.com/aretw0/aether/pkg/core"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve /api/health, /api/config and read-only views over HTTP",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if serveAddr == "" {
			serveAddr = cfg.Server.Addr
		}
		if !verbose {
			gin.SetMode(gin.ReleaseMode)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app := openApp(aether.WithWatch(true))
		defer app.Close()

		srv := httpapi.New(cfg.Store, app, slog.Default())

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.Serve(ctx, serveAddr)
		})
		if notifier, ok := app.Store.(core.Notifier); ok {
			source := adapterlifecycle.NewSource(notifier, "*")
			if err := source.Start(ctx); err != nil {
				fatal("Failed to follow store changes", err)
			}
			g.Go(func() error {
				for ev := range source.Events() {
					slog.Debug("store changed", "event", ev.String())
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			fatal("Server failed", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from server.addr)")
}
