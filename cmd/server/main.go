package main

import (
	"context"
	"errors"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/authdoc/internal/authn"
	"github.com/authdoc/internal/callbacks"
	"github.com/authdoc/internal/config"
	"github.com/authdoc/internal/http"
	"github.com/authdoc/internal/logger"
	"github.com/authdoc/internal/registry"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (optional, won't error if missing)
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	appLogger := logger.InitLogger(cfg.Environment)
	if envErr != nil {
		appLogger.Debug("no .env file loaded", "error", envErr)
	}

	reg, err := buildRegistry(cfg)
	if err != nil {
		appLogger.Error("failed to build provider registry", "error", err)
		os.Exit(1)
	}
	appLogger.Info("oauth providers loaded", "providers", reg.Names())
	for _, d := range reg.List() {
		if d.ClientID == "" || d.ClientSecret == "" {
			appLogger.Warn("oauth provider has no credentials, sign-in will fail at the provider", "provider", d.Name)
		}
	}

	signIn, err := callbacks.PolicyFromConfig(cfg.Auth.SignIn)
	if err != nil {
		appLogger.Error("invalid sign-in policy", "error", err)
		os.Exit(1)
	}
	if signIn == nil {
		appLogger.Warn("sign-in policy allow_all: every provider account may sign in")
	} else {
		appLogger.Info("sign-in policy allowlist", "allowed_users", len(cfg.Auth.SignIn.AllowedUsers))
	}

	// Hook lines go to stderr, apart from the application log
	pipe := callbacks.New(logger.NewDiagnostic(os.Stderr), callbacks.Callbacks{SignIn: signIn})

	authService, err := authn.NewService(cfg, reg, pipe, appLogger)
	if err != nil {
		appLogger.Error("failed to initialize auth service", "error", err)
		os.Exit(1)
	}

	server := http.NewServer(cfg, authService, pipe, appLogger)

	go func() {
		if err := server.Run(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			appLogger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("server shutdown error", "error", err)
	}
	appLogger.Info("server stopped")
}

// buildRegistry reads AUTH_PROVIDERS_FILE when set and falls back to the
// single GitHub provider from the environment.
func buildRegistry(cfg *config.Config) (*registry.Registry, error) {
	if cfg.Auth.ProvidersFile == "" {
		return registry.New(registry.FromConfig(cfg))
	}
	descs, err := registry.LoadFile(cfg.Auth.ProvidersFile, os.LookupEnv)
	if err != nil {
		return nil, err
	}
	return registry.New(descs...)
}
