// Package logging provides structured logging infrastructure for deck.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/meow-stack/actiondeck/internal/config"
)

// NewFromConfig creates a new slog.Logger based on configuration.
// Diagnostics go to w (normally stderr) and, when configured, to a log file.
func NewFromConfig(cfg *config.Config, baseDir string, w io.Writer) (*slog.Logger, io.Closer, error) {
	level := parseLevel(cfg.Logging.Level)
	handler := newHandler(cfg.Logging.Format, w, level)

	var closer io.Closer
	if logPath := cfg.LogFile(baseDir); logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
			return nil, nil, err
		}

		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, err
		}
		closer = file

		multi := io.MultiWriter(w, file)
		handler = newHandler(cfg.Logging.Format, multi, level)
	}

	return slog.New(handler), closer, nil
}

// NewDefault creates a default logger writing to stderr.
func NewDefault() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// NewForTest creates a silent logger for tests.
func NewForTest() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// NewWithLevel creates a logger with the specified level.
func NewWithLevel(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// parseLevel converts config log level to slog.Level.
func parseLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelInfo:
		return slog.LevelInfo
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newHandler creates a slog.Handler based on format.
func newHandler(format config.LogFormat, w io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	switch format {
	case config.LogFormatJSON:
		return slog.NewJSONHandler(w, opts)
	case config.LogFormatText:
		return slog.NewTextHandler(w, opts)
	default:
		return slog.NewTextHandler(w, opts)
	}
}

// WithFields returns a logger with the given fields added.
func WithFields(logger *slog.Logger, fields ...any) *slog.Logger {
	return logger.With(fields...)
}

// WithAction returns a logger with action context.
func WithAction(logger *slog.Logger, actionID string) *slog.Logger {
	return logger.With("action", actionID)
}

// WithRun returns a logger with run context.
func WithRun(logger *slog.Logger, actionID, runID string) *slog.Logger {
	return logger.With("action", actionID, "run_id", runID)
}

// WithStep returns a logger with step context.
func WithStep(logger *slog.Logger, stepPath string, kind string) *slog.Logger {
	return logger.With("step", stepPath, "step_kind", kind)
}
