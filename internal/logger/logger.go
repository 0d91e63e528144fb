package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	authlog "github.com/go-pkgz/auth/logger"
)

// InitLogger initializes and configures the application logger based on environment
// Returns a configured slog.Logger instance
func InitLogger(environment string) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	// In development, use more verbose logging and text handler
	if environment == "development" {
		opts.Level = slog.LevelDebug
		opts.AddSource = true // Include source file and line number
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		// In production, use JSON handler for structured logging
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)

	// Set as default logger so it can be used throughout the application
	slog.SetDefault(logger)

	return logger
}

// NewDiagnostic returns the logger used for callback invocation lines.
// Each record is written as its bare message on a line of its own.
func NewDiagnostic(w io.Writer) *slog.Logger {
	return slog.New(&messageHandler{mu: &sync.Mutex{}, w: w})
}

// messageHandler writes only the record message. Level, time and
// attributes are dropped.
type messageHandler struct {
	mu *sync.Mutex
	w  io.Writer
}

func (h *messageHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *messageHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, r.Message+"\n")
	return err
}

func (h *messageHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *messageHandler) WithGroup(string) slog.Handler { return h }

// Engine adapts l to the authentication engine's printf-style logger.
// Engine lines are prefixed with their level in brackets, e.g. "[WARN] ...".
func Engine(l *slog.Logger) authlog.L {
	return authlog.Func(func(format string, args ...interface{}) {
		msg := fmt.Sprintf(format, args...)
		level := slog.LevelDebug
		switch {
		case strings.HasPrefix(msg, "[ERROR]"):
			level = slog.LevelError
		case strings.HasPrefix(msg, "[WARN]"):
			level = slog.LevelWarn
		case strings.HasPrefix(msg, "[INFO]"):
			level = slog.LevelInfo
		}
		l.Log(context.Background(), level, msg, "component", "auth")
	})
}
