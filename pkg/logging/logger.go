// Package logging provides structured logging configuration using zerolog.
//
// All diagnostics go to stderr by default: stdout is reserved for the
// emitted record stream, so anything written there would corrupt the
// output consumed by downstream loaders.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Per-page request flow (page counters, continuation decisions)
//   - Record timestamp normalization fallbacks
//   - Bookmark reads and legacy-key fallbacks
//
// Info: Normal operation events
//   - Stream sync start/finish
//   - Window commits and bookmark writes
//   - Rate limit waits (expected, self-imposed)
//
// Warn: Warning conditions that don't prevent operation
//   - 429 responses and fallback delays
//   - Endpoint fallback probing attempts
//   - Skipped unsupported streams
//
// Error: Error conditions requiring attention
//   - Authentication failures (401/403)
//   - Structural response failures (non-JSON 200 bodies)
//   - Skipped windows (bookmark gap left behind)
//
// Context Fields:
//   - endpoint: upstream resource path
//   - stream: stream identifier
//   - status: HTTP status code
//   - window_start / window_end: window bounds for the current query
//   - auth_mode: active authentication mode
//   - remaining / reset_seconds: rate-limit budget observation
