// Package httpapi serves the small HTTP surface of Aether: liveness, client
// configuration and read-only views over the services.
package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aretw0/aether/internal/config"
	"github.com/aretw0/aether/internal/platform"
)

// ShutdownTimeout bounds the graceful stop of Serve.
const ShutdownTimeout = 5 * time.Second

// Server is the Aether HTTP server
type Server struct {
	router *gin.Engine
	store  config.StoreConfig
	app    *platform.App
	logger *slog.Logger
}

// New creates the server. app may be nil, in which case only the health and
// config routes answer.
func New(store config.StoreConfig, app *platform.App, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		router: router,
		store:  store,
		app:    app,
		logger: logger,
	}

	api := router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/config", s.handleConfig)
		api.GET("/status", s.handleStatus)
		api.GET("/users/:user/dashboard", s.handleDashboard)
		api.GET("/users/:user/board", s.handleBoard)
	}

	return s
}

// Handler exposes the router (for httptest and embedding).
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped", "addr", addr)
	return nil
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
