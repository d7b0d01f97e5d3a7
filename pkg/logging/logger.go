// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

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

// Setup configures the global zerolog logger. A nil Output writes to stderr.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// parseLevel converts LogLevel to zerolog.Level. "warning" and "off" are
// accepted as aliases; anything unrecognised falls back to info.
func parseLevel(level LogLevel) zerolog.Level {
	name := strings.ToLower(strings.TrimSpace(string(level)))
	switch name {
	case "warning":
		name = "warn"
	case "off":
		name = "disabled"
	}

	parsed, err := zerolog.ParseLevel(name)
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}

// Component names used for the "component" field.
const (
	// ComponentServer is the HTTP server and process lifecycle.
	ComponentServer = "server"

	// ComponentCoordinator is cache lookup and upstream walks.
	ComponentCoordinator = "coordinator"

	// ComponentAirtable is the upstream client, retries included.
	ComponentAirtable = "airtable-client"

	// ComponentRateLimit is request spacing and penalty windows.
	ComponentRateLimit = "ratelimit"

	// ComponentCache is the page store backend.
	ComponentCache = "cache"
)

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key)
//   - Individual upstream pages (index, record count, last page)
//   - Limiter waits
//
// Info: Normal operation events
//   - Finished upstream walks (outcome, pages, duration)
//   - Server startup/shutdown
//   - Selected cache backend and limiter
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts
//   - Cache read/write errors (treated as a miss)
//   - Upstream error responses
//
// Error: Error conditions requiring attention
//   - Failed walks (after retries)
//   - 429 penalty windows
//   - Configuration errors
//
// Context Fields:
//   - table: Airtable table name
//   - path: inbound request path
//   - page: target page index
//   - key: cache key
//   - outcome: walk outcome (found, exhausted, failed)
//   - pages: upstream pages requested
//   - duration: request or walk duration
//   - error_class: Error classification (client, server, rate_limit, network)
