// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration.
type Config struct {
	// Level is trace, debug, info, warn or error. Empty means info.
	Level string

	// Pretty switches from JSON lines to console output.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns JSON logging at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Output: os.Stderr,
	}
}

// ParseLevel maps a level name to a zerolog level. "warning" is accepted as
// an alias of warn.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel, fmt.Errorf("unsupported log level %q", level)
	}
	return lvl, nil
}

// Setup configures the global logger and returns it. Unknown levels fall back
// to info.
func Setup(cfg Config) zerolog.Logger {
	level, _ := ParseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// NewLogger creates a logger tagged with a component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: worker and cache internals
//   - cache hit/miss, key, TTL
//   - memo hits for details and credits
//   - page artifact writes, worker completion
//
// Info: partition progress
//   - partition enumerated, fetch pass complete, reconciliation complete
//   - partition merged, merged artifact written or mirrored
//   - run started / run complete
//
// Warn: recoverable problems
//   - page fetch failed, page retry failed
//   - merge skipped because pages are missing
//   - rate limit throttling, retries
//
// Error: partition or sink failures
//   - enumeration failed (upstream unavailable)
//   - merge failed, publish failed, rollback failed
//
// Context Fields:
//   - component: emitting component
//   - run_id: pipeline run id
//   - partition: region/year, e.g. US/1999
//   - unit: partition#page
//   - endpoint: catalog endpoint group
//   - error_class: client, server, rate_limit, network
