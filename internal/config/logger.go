package config

import (
	"log/slog"
	"os"
)

// NewLogger builds the structured JSON logger and installs it as the default.
func NewLogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	})).With("app", cfg.App.Name)
	slog.SetDefault(logger)
	return logger
}
