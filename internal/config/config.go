package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/authdoc/internal/validation"
	"github.com/caarlos0/env/v11"
)

// Sign-in policies accepted in AUTH_SIGNIN_POLICY.
const (
	PolicyAllowAll  = "allow_all"
	PolicyAllowlist = "allowlist"
)

// ErrInvalidPolicy is returned when AUTH_SIGNIN_POLICY holds an unknown value.
var ErrInvalidPolicy = errors.New("invalid sign-in policy")

// Config holds the application configuration
type Config struct {
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:":8080"`
	Environment   string `env:"APP_ENV" envDefault:"production"`
	Auth          AuthConfig
	CORS          CORSConfig
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:8080"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	BaseURL        string        `env:"AUTH_BASE_URL" envDefault:"http://localhost:8080"`
	JWTSecret      string        `env:"JWT_SECRET" envDefault:"change-me-in-production-secret-key"`
	Issuer         string        `env:"AUTH_ISSUER" envDefault:"authdoc"`
	TokenDuration  time.Duration `env:"AUTH_TOKEN_DURATION" envDefault:"24h"`
	CookieDuration time.Duration `env:"AUTH_COOKIE_DURATION" envDefault:"168h"`
	SecureCookie   bool          `env:"AUTH_SECURE_COOKIE" envDefault:"false"`
	CookieDomain   string        `env:"AUTH_COOKIE_DOMAIN"`
	ProvidersFile  string        `env:"AUTH_PROVIDERS_FILE"`
	GitHub         GitHubOAuthConfig
	SignIn         SignInConfig
}

// GitHubOAuthConfig holds GitHub OAuth configuration. Missing credentials
// resolve to empty strings; the provider rejects the handshake later.
type GitHubOAuthConfig struct {
	ClientID     string `env:"GITHUB_ID"`
	ClientSecret string `env:"GITHUB_SECRET"`
	Scope        string `env:"GITHUB_SCOPE"`
}

// SignInConfig selects the sign-in policy
type SignInConfig struct {
	Policy       string   `env:"AUTH_SIGNIN_POLICY" envDefault:"allow_all"`
	AllowedUsers []string `env:"AUTH_ALLOWED_USERS" envSeparator:","`
	DeniedPath   string   `env:"AUTH_DENIED_PATH"`
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.Auth.BaseURL = strings.TrimSuffix(cfg.Auth.BaseURL, "/")
	cfg.CORS.AllowedOrigins = trimList(cfg.CORS.AllowedOrigins)
	cfg.Auth.SignIn.AllowedUsers = trimList(cfg.Auth.SignIn.AllowedUsers)

	if err := validation.ValidateEndpointURL(cfg.Auth.BaseURL); err != nil {
		return nil, fmt.Errorf("AUTH_BASE_URL: %w", err)
	}
	if cfg.Auth.SignIn.DeniedPath != "" {
		if err := validation.ValidateRedirectPath(cfg.Auth.SignIn.DeniedPath); err != nil {
			return nil, fmt.Errorf("AUTH_DENIED_PATH: %w", err)
		}
	}

	switch cfg.Auth.SignIn.Policy {
	case PolicyAllowAll, PolicyAllowlist:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidPolicy, cfg.Auth.SignIn.Policy)
	}

	return &cfg, nil
}

// trimList drops blank entries and surrounding whitespace from a split list
func trimList(items []string) []string {
	result := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}
