// Package logger builds the process-wide structured logger.  The
// output format and level depend on the deployment environment so that
// local runs stay readable while deployed instances emit JSON.
package logger

import (
	"io"
	"log/slog"
	"os"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Setup returns a logger for the given environment writing to stdout.
func Setup(env string) *slog.Logger {
	return New(env, os.Stdout)
}

// New returns a logger for the given environment writing to w.
// Unknown environments fall back to the production settings.
func New(env string, w io.Writer) *slog.Logger {
	var h slog.Handler
	switch env {
	case EnvLocal:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	case EnvDev:
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	default:
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return slog.New(h)
}

// Discard returns a logger that drops every record.  Tests use it.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
