// Package logging sets up the broker's process-wide structured logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Config controls where log output goes and at what level. MaxLogFiles is
// accepted but not used: the log file is appended to and never rotated.
type Config struct {
	LogPath     string
	LogLevel    string
	MaxLogFiles int
}

var (
	base   zerolog.Logger
	sink   io.Closer
)

// Init opens the log file and installs the process-wide logger. Call Close
// on shutdown.
func Init(cfg Config) error {
	level := parseLevel(cfg.LogLevel)

	var w io.Writer = os.Stderr
	if cfg.LogPath != "" {
		f, err := os.OpenFile(cfg.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open log file %q: %w", cfg.LogPath, err)
		}
		w = f
		sink = f
	}

	base = zerolog.New(w).Level(level).With().Timestamp().Logger()
	return nil
}

// Close flushes and releases the log file, if one was opened.
func Close() error {
	if sink != nil {
		return sink.Close()
	}
	return nil
}

// For returns a child logger tagged with a component name, e.g.
// logging.For("router").Info().Msg("spawned server").
func For(component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "trace":
		return zerolog.TraceLevel
	case "", "info":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}
