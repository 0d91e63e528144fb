package authn

import (
	"context"
	"log/slog"
	"sync"

	"github.com/authdoc/internal/callbacks"
	"github.com/go-pkgz/auth/token"
)

// AccessTokenAttr is the user attribute holding the provider access token
// inside the signed session token.
const AccessTokenAttr = "access_token"

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "JWT"

// SessionTokenFromUser maps an engine user onto the hook-facing session token.
func SessionTokenFromUser(u token.User) callbacks.SessionToken {
	return callbacks.SessionToken{
		Subject:     u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Picture:     u.Picture,
		AccessToken: u.StrAttr(AccessTokenAttr),
	}
}

// ApplySessionToken writes tok back into claims. The user is copied so the
// caller's claims are never mutated through the shared pointer.
func ApplySessionToken(c *token.Claims, tok callbacks.SessionToken) {
	u := token.User{}
	if c.User != nil {
		u = *c.User
	}
	attrs := make(map[string]interface{}, len(u.Attributes)+1)
	for k, v := range u.Attributes {
		attrs[k] = v
	}
	u.Attributes = attrs

	u.ID = tok.Subject
	u.Name = tok.Name
	u.Email = tok.Email
	u.Picture = tok.Picture
	if tok.AccessToken != "" {
		u.SetStrAttr(AccessTokenAttr, tok.AccessToken)
	} else {
		delete(u.Attributes, AccessTokenAttr)
	}
	if len(u.Attributes) == 0 {
		u.Attributes = nil
	}

	c.User = &u
	c.Subject = tok.Subject
}

// TokenHook runs the jwt callback whenever the engine mints or refreshes a
// session token. It implements token.ClaimsUpdater.
//
// The sign-in callback runs the hook itself, with the provider account, and
// marks the token id so the mint that follows does not run it twice.
type TokenHook struct {
	pipe   *callbacks.Pipeline
	log    *slog.Logger
	hooked sync.Map // jti -> struct{}
}

// NewTokenHook creates a claims updater backed by pipe.
func NewTokenHook(pipe *callbacks.Pipeline, log *slog.Logger) *TokenHook {
	if log == nil {
		log = slog.Default()
	}
	return &TokenHook{pipe: pipe, log: log}
}

// Update implements token.ClaimsUpdater. Handshake claims pass through.
// The engine's updater has no error channel, so a failing hook is logged and
// the claims are kept as they were.
func (h *TokenHook) Update(claims token.Claims) token.Claims {
	if claims.User == nil || claims.Handshake != nil {
		return claims
	}
	if _, ok := h.hooked.LoadAndDelete(claims.Id); ok && claims.Id != "" {
		return claims
	}

	tok, err := h.pipe.JWT(context.Background(), callbacks.JWTParams{
		Token: SessionTokenFromUser(*claims.User),
	})
	if err != nil {
		h.log.Error("jwt callback failed, keeping previous claims", "user", claims.User.ID, "error", err)
		return claims
	}

	ApplySessionToken(&claims, tok)
	return claims
}

// markHooked records that the jwt hook already ran for token id jti.
func (h *TokenHook) markHooked(jti string) {
	h.hooked.Store(jti, struct{}{})
}

// forget drops a mark left behind by a failed mint.
func (h *TokenHook) forget(jti string) {
	h.hooked.Delete(jti)
}
