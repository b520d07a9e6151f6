// Package log provides the logging infrastructure shared across kopi.
//
// It exposes a thin factory over log/slog plus a Nop logger for tests.
// Components receive a logger via their constructors (dependency injection,
// never package-level globals) and add context with logger.With():
//
//	logger := log.New(log.Config{Level: slog.LevelDebug})
//	limiter := ratelimit.New(cfg, logger.With("component", "ratelimit"))
//	router := intent.NewRouter(g, cfg, logger.With("component", "intent"))
package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger is a type alias for *slog.Logger. Using the standard library type
// directly keeps full compatibility with the slog ecosystem and avoids a
// custom interface that would only mirror it.
type Logger = *slog.Logger

// Config defines logger configuration options.
type Config struct {
	// Level sets the minimum log level. Default: slog.LevelInfo
	Level slog.Level

	// JSON enables JSON format output. Default: false (text format)
	JSON bool

	// AddSource adds source file information to log entries. Default: false
	AddSource bool
}

// New creates a new logger writing to os.Stderr.
// Stderr keeps stdout free for command output.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter creates a new logger that writes to the specified writer.
// Useful for testing or custom output destinations:
//
//	var buf bytes.Buffer
//	logger := log.NewWithWriter(&buf, log.Config{})
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewNop creates a logger that discards all output.
//
// Tests only. Production code should always use New() or NewWithWriter()
// with a real destination.
func NewNop() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
