package authn

import (
	"errors"
	"log/slog"

	"github.com/authdoc/internal/apipaths"
	"github.com/authdoc/internal/callbacks"
	"github.com/authdoc/internal/config"
	"github.com/authdoc/internal/logger"
	"github.com/authdoc/internal/registry"
	"github.com/go-pkgz/auth"
	"github.com/go-pkgz/auth/avatar"
	"github.com/go-pkgz/auth/token"
)

// ErrNoProviders is returned when the registry is empty.
var ErrNoProviders = errors.New("no oauth providers registered")

// NewService initializes go-pkgz/auth with one GitHub handler per registered
// provider and the callback pipeline bound to its token lifecycle.
func NewService(cfg *config.Config, reg *registry.Registry, pipe *callbacks.Pipeline, log *slog.Logger) (*auth.Service, error) {
	if reg == nil || reg.Len() == 0 {
		return nil, ErrNoProviders
	}
	if log == nil {
		log = slog.Default()
	}

	hook := NewTokenHook(pipe, log)

	// URL must include /auth prefix since that's where the handlers are mounted
	opts := auth.Opts{
		SecretReader: token.SecretFunc(func(string) (string, error) {
			return cfg.Auth.JWTSecret, nil
		}),
		ClaimsUpd:       hook,
		TokenDuration:   cfg.Auth.TokenDuration,
		CookieDuration:  cfg.Auth.CookieDuration,
		Issuer:          cfg.Auth.Issuer,
		URL:             cfg.Auth.BaseURL + "/auth",
		AvatarStore:     avatar.NewNoOp(),
		SecureCookies:   cfg.Auth.SecureCookie,
		JWTCookieName:   SessionCookieName,
		JWTCookieDomain: cfg.Auth.CookieDomain,
		DisableXSRF:     true, // API usage
		Validator: token.ValidatorFunc(func(_ string, claims token.Claims) bool {
			if claims.User == nil {
				log.Warn("JWT validation failed: no user in claims")
				return false
			}
			return true
		}),
		Logger: logger.Engine(log),
	}

	svc := auth.NewService(opts)

	for _, desc := range reg.List() {
		svc.AddCustomHandler(NewGitHub(desc, GitHubOpts{
			BaseURL:  cfg.Auth.BaseURL,
			Tokens:   svc.TokenService(),
			Pipeline: pipe,
			Hook:     hook,
			Logger:   log,
		}))
		log.Info("registered oauth provider",
			"provider", desc.Name,
			"scopes", desc.Scopes(),
			"login", apipaths.ProviderLogin(desc.Name),
			"logout", apipaths.ProviderLogout(desc.Name),
		)
	}

	return svc, nil
}
