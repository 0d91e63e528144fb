package http

import (
	"net/http"

	"github.com/authdoc/internal/authn"
	"github.com/authdoc/internal/callbacks"
	"github.com/gin-gonic/gin"
)

// getSession returns the client-facing session view. Callers without a valid
// session get an empty object.
func (s *Server) getSession(c *gin.Context) {
	user, ok := s.authenticate(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	view := callbacks.SessionView{
		User: callbacks.SessionUser{
			Name:  user.Name,
			Email: user.Email,
			Image: user.Picture,
		},
		Expires: s.now().Add(s.config.Auth.CookieDuration).UTC(),
	}

	view, err := s.pipeline.Session(c.Request.Context(), view, authn.SessionTokenFromUser(user))
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "session callback failed", "user", user.ID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load session"})
		return
	}

	c.JSON(http.StatusOK, view)
}
