// Package logging provides structured logging configuration for sfnharness.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Config contains configuration for the logger
type Config struct {
	// Level is the minimum log level to output
	Level string `json:"level"` // "debug", "info", "warn", "error"

	// Format is the log format
	Format string `json:"format"` // "json", "text"

	// Output is where logs are written
	Output string `json:"output"` // "stdout", "stderr", "file"

	// FilePath is the path to the log file (if Output is "file")
	FilePath string `json:"file_path"`
}

// DefaultConfig returns the default logging configuration
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "text",
		Output: "stdout",
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup builds a logger from the configuration. The returned closer flushes
// and releases the log file when one is in use; it is always safe to close.
func Setup(cfg Config) (*slog.Logger, io.Closer, error) {
	var level slog.Level

	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var (
		w      io.Writer
		closer io.Closer = nopCloser{}
	)

	switch cfg.Output {
	case "file":
		if cfg.FilePath == "" {
			return nil, nil, fmt.Errorf("logging output is 'file' but no file path is set")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = f
		closer = f
	case "stderr":
		w = os.Stderr
	default:
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler), closer, nil
}

// Discard returns a logger that drops everything. Useful as a default in
// library constructors so components never depend on a global logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
