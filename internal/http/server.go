package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/authdoc/internal/authn"
	"github.com/authdoc/internal/callbacks"
	"github.com/authdoc/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/go-pkgz/auth"
	"github.com/go-pkgz/auth/token"
)

// Server wraps the HTTP server
type Server struct {
	config      *config.Config
	engine      *gin.Engine
	authService *auth.Service
	pipeline    *callbacks.Pipeline
	log         *slog.Logger
	httpServer  *http.Server
	now         func() time.Time
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, authService *auth.Service, pipe *callbacks.Pipeline, log *slog.Logger) *Server {
	// Set Gin mode based on environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	if log == nil {
		log = slog.Default()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	// Middleware - order matters
	engine.Use(securityHeadersMiddleware())
	engine.Use(corsMiddleware(cfg))
	engine.Use(cacheControlMiddleware())
	engine.Use(loggerMiddleware(log))
	engine.Use(jsonBodyLimitMiddleware(maxBodySize))

	// Request body size limit
	engine.MaxMultipartMemory = maxBodySize

	addr := cfg.ServerAddress
	if addr == "" {
		addr = ":8080"
	}

	server := &Server{
		config:      cfg,
		engine:      engine,
		authService: authService,
		pipeline:    pipe,
		log:         log,
		now:         time.Now,
	}

	// Configure server with timeouts
	server.httpServer = &http.Server{
		Addr:           addr,
		Handler:        engine,
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		IdleTimeout:    idleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB max header size
	}

	// Setup routes
	server.setupRoutes()

	return server
}

const (
	maxBodySize  = 1 << 20           // 1MB max request body
	readTimeout  = 30 * time.Second  // 30s for reading request
	writeTimeout = 30 * time.Second  // provider exchange happens inside the callback request
	idleTimeout  = 120 * time.Second // 2 minutes idle
)

// Run starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Run() error {
	s.log.Info("HTTP server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// securityHeadersMiddleware adds security-related HTTP headers
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Prevent MIME type sniffing
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		// Prevent clickjacking
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		c.Writer.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		// HSTS (only if using HTTPS)
		if c.Request.TLS != nil {
			c.Writer.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

// corsMiddleware adds CORS headers with configurable origin
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	allowedOrigins := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
	for _, o := range cfg.CORS.AllowedOrigins {
		allowedOrigins[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if _, ok := allowedOrigins[origin]; ok && origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-JWT")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// cacheControlMiddleware disables caching for session and auth responses
func cacheControlMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		if strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/auth/") {
			c.Writer.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
			c.Writer.Header().Set("Pragma", "no-cache")
			c.Writer.Header().Set("Expires", "0")
		}

		c.Next()
	}
}

// jsonBodyLimitMiddleware limits the size of JSON request bodies to prevent DoS
func jsonBodyLimitMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Only apply to JSON requests
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodDelete && c.Request.Method != http.MethodOptions {
			contentType := c.GetHeader("Content-Type")
			if strings.Contains(contentType, "application/json") {
				if c.Request.ContentLength > maxBytes {
					c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "Request body too large"})
					return
				}
				c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
			}
		}
		c.Next()
	}
}

// loggerMiddleware logs HTTP requests
func loggerMiddleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.InfoContext(c.Request.Context(), "HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"remote_addr", c.ClientIP(),
		)
	}
}

// authenticate runs the engine's trace middleware and returns the user the
// request carries, if any. Expired tokens are refreshed on the way.
func (s *Server) authenticate(c *gin.Context) (token.User, bool) {
	var (
		userInfo      token.User
		authenticated bool
	)

	authMiddleware := s.authService.Middleware()
	handler := authMiddleware.Trace(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, err := token.GetUserInfo(r); err == nil {
			userInfo = u
			authenticated = true
		}
		// Update request in gin context
		c.Request = r
	}))
	handler.ServeHTTP(c.Writer, c.Request)

	// A refreshed token carries the jwt callback's changes, the request
	// context still holds the claims it replaced
	if authenticated {
		if claims, ok := s.reissuedClaims(c); ok {
			userInfo = *claims.User
		}
	}

	return userInfo, authenticated
}

// reissuedClaims returns the session claims set on the response by a refresh.
func (s *Server) reissuedClaims(c *gin.Context) (token.Claims, bool) {
	resp := http.Response{Header: c.Writer.Header()}
	for _, cookie := range resp.Cookies() {
		if cookie.Name != authn.SessionCookieName || cookie.Value == "" {
			continue
		}
		claims, err := s.authService.TokenService().Parse(cookie.Value)
		if err != nil || claims.User == nil {
			s.log.WarnContext(c.Request.Context(), "failed to read refreshed session token", "error", err)
			return token.Claims{}, false
		}
		return claims, true
	}
	return token.Claims{}, false
}

// getAuthMiddleware returns a Gin middleware that requires authentication
func (s *Server) getAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := s.authenticate(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Authentication required. Please login with GitHub."})
			return
		}

		// Store user info in gin context for handlers
		c.Set("user", user)
		c.Next()
	}
}

// getUserFromContext extracts the authenticated user from context
func getUserFromContext(c *gin.Context) (token.User, bool) {
	if user, exists := c.Get("user"); exists {
		if u, ok := user.(token.User); ok {
			return u, true
		}
	}
	return token.User{}, false
}
