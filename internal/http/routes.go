package http

import (
	"net/http"
	"strings"

	"github.com/authdoc/internal/apipaths"
	"github.com/gin-gonic/gin"
)

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Mount auth routes (login, logout, callbacks)
	// go-pkgz/auth expects paths relative to mount point, so we strip /auth prefix
	authHandler, _ := s.authService.Handlers()
	engineRoutes := wrapAuthHandler(authHandler, apipaths.AuthPrefix)
	s.engine.Any(apipaths.AuthPrefix+"/*path", func(c *gin.Context) {
		// The engine serves the raw user, token attributes included, for any
		// path ending in "user"
		if isUserPath(c.Request.URL.Path) {
			s.getAuthUser(c)
			return
		}
		engineRoutes(c)
	})

	// Health check endpoint (no auth required)
	s.engine.GET(apipaths.Health, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "authdoc",
		})
	})

	// Session endpoint answers anonymous callers too
	s.engine.GET(apipaths.Session, s.getSession)

	api := s.engine.Group("/api")
	api.Use(s.getAuthMiddleware())
	{
		// User info endpoint
		api.GET(strings.TrimPrefix(apipaths.Me, "/api"), s.getCurrentUser)
	}
}

// getCurrentUser returns the authenticated user info
func (s *Server) getCurrentUser(c *gin.Context) {
	user, exists := getUserFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "Not authenticated",
			Details: "Please login with GitHub to continue",
		})
		return
	}

	c.JSON(http.StatusOK, newUserResponse(user))
}

// getAuthUser answers the engine user paths with the same projection as /api/me
func (s *Server) getAuthUser(c *gin.Context) {
	user, ok := s.authenticate(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Not authenticated"})
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}

// isUserPath reports whether the engine would treat path as its user endpoint.
func isUserPath(path string) bool {
	elems := strings.Split(path, "/")
	return elems[len(elems)-1] == "user"
}

// wrapAuthHandler wraps an http.Handler for use with Gin, stripping the prefix
// go-pkgz/auth expects paths relative to where it's mounted
func wrapAuthHandler(handler http.Handler, prefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Strip the prefix from the URL path for the handler
		originalPath := c.Request.URL.Path
		c.Request.URL.Path = strings.TrimPrefix(originalPath, prefix)

		// Serve using the wrapped handler
		handler.ServeHTTP(c.Writer, c.Request)

		// Restore original path (in case anything else needs it)
		c.Request.URL.Path = originalPath
	}
}
