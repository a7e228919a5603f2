package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	// EnvLogLevel overrides the level passed on the command line when set.
	EnvLogLevel = "LOG_LEVEL"

	// FormatText selects the slog text handler.
	FormatText = "text"
	// FormatJSON selects the slog JSON handler.
	FormatJSON = "json"
)

// ParseLevel converts a level name into a slog.Level.
// Unknown names fall back to INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Options configures a structured logger.
type Options struct {
	Module  string
	Version string
	RunID   string
	Level   string
	Format  string
	Writer  io.Writer
}

// NewStructuredLogger builds a logger writing to opts.Writer (stderr when nil).
// Debug level adds source locations.
func NewStructuredLogger(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	level := opts.Level
	if env := os.Getenv(EnvLogLevel); env != "" {
		level = env
	}
	lvl := ParseLevel(level)

	hopts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl <= slog.LevelDebug,
	}

	var h slog.Handler
	if strings.EqualFold(opts.Format, FormatJSON) {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}

	attrs := []slog.Attr{slog.String("module", opts.Module)}
	if opts.Version != "" {
		attrs = append(attrs, slog.String("version", opts.Version))
	}
	if opts.RunID != "" {
		attrs = append(attrs, slog.String("run_id", opts.RunID))
	}

	return slog.New(h.WithAttrs(attrs))
}

// SetDefaultStructuredLoggerWithLevel installs a stderr text logger as the
// slog default.
func SetDefaultStructuredLoggerWithLevel(module, version, level string) *slog.Logger {
	logger := NewStructuredLogger(Options{
		Module:  module,
		Version: version,
		Level:   level,
	})
	slog.SetDefault(logger)
	return logger
}
