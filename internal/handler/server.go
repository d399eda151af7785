// Package handler provides system-level HTTP handlers.
package handler

import (
	"net/http"
	"time"

	"claude-relay/internal/types"
	"claude-relay/internal/version"

	"github.com/gin-gonic/gin"
)

// Server holds the handlers for system endpoints.
type Server struct {
	configManager types.ConfigManager
}

// NewServer creates a handler server.
func NewServer(configManager types.ConfigManager) *Server {
	return &Server{
		configManager: configManager,
	}
}

// Health reports liveness. Uptime is derived from the server start time set
// by the router.
func (s *Server) Health(c *gin.Context) {
	uptime := "unknown"
	if startTime, exists := c.Get("serverStartTime"); exists {
		if start, ok := startTime.(time.Time); ok {
			uptime = time.Since(start).Round(time.Second).String()
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"version":   version.Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    uptime,
	})
}
