package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aretw0/aether/pkg/core"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleConfig hands hosted clients the store endpoint and public key.
func (s *Server) handleConfig(c *gin.Context) {
	if s.store.URL == "" || s.store.AnonKey == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store config not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"storeUrl":     s.store.URL,
		"storeAnonKey": s.store.AnonKey,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	if !s.ready(c) {
		return
	}
	c.JSON(http.StatusOK, s.app.State())
}

func (s *Server) handleDashboard(c *gin.Context) {
	if !s.ready(c) {
		return
	}
	snap, err := s.app.Dashboard.Snapshot(c.Request.Context(), c.Param("user"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleBoard(c *gin.Context) {
	if !s.ready(c) {
		return
	}
	b, err := s.app.BoardView(c.Request.Context(), c.Param("user"))
	if err != nil {
		s.fail(c, err)
		return
	}
	cols := b.Columns()
	c.JSON(http.StatusOK, gin.H{
		string(core.StatusTodo):  nonNil(cols[core.StatusTodo]),
		string(core.StatusDoing): nonNil(cols[core.StatusDoing]),
		string(core.StatusDone):  nonNil(cols[core.StatusDone]),
	})
}

func (s *Server) ready(c *gin.Context) bool {
	if s.app == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store not opened"})
		return false
	}
	return true
}

func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
