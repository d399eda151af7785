// Package router builds the gin engine and registers all routes.
package router

import (
	"time"

	"claude-relay/internal/handler"
	"claude-relay/internal/middleware"
	"claude-relay/internal/relay"
	"claude-relay/internal/types"

	"github.com/gin-gonic/gin"
)

// NewRouter creates the gin engine with the full middleware chain and all
// routes registered.
func NewRouter(
	serverHandler *handler.Server,
	relayServer *relay.Server,
	configManager types.ConfigManager,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Register global middleware
	router.Use(middleware.Recovery())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(configManager.GetLogConfig()))
	router.Use(middleware.CORS(configManager.GetCORSConfig()))
	router.Use(middleware.RateLimiter(configManager.GetPerformanceConfig()))
	router.Use(middleware.Auth(configManager.GetAuthConfig()))
	startTime := time.Now()
	router.Use(func(c *gin.Context) {
		c.Set("serverStartTime", startTime)
		c.Next()
	})

	registerSystemRoutes(router, serverHandler)
	registerRelayRoutes(router, relayServer)

	return router
}

// registerSystemRoutes registers system-level routes
func registerSystemRoutes(router *gin.Engine, serverHandler *handler.Server) {
	router.GET("/health", serverHandler.Health)
}

// registerRelayRoutes registers the relay surface. A single wildcard route
// keeps POST /v1/messages and the transparent passthrough from conflicting
// in the route tree; dispatch happens in the relay server.
func registerRelayRoutes(router *gin.Engine, relayServer *relay.Server) {
	router.Any("/v1/*path", relayServer.Handle)
}
