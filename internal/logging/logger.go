// Package logging configures the global zerolog logger and emits the
// cold-start summary for each Lambda.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Environment keys read by Init.
const (
	EnvLevel  = "LOG_LEVEL"
	EnvFormat = "LOG_FORMAT"
)

// ParseLevel maps a level name to a zerolog level. Unknown names yield info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Init initializes the global logger from the environment.
// LOG_LEVEL is one of debug, info, warn, error (default info).
// LOG_FORMAT=console switches to human-readable output; otherwise one JSON
// object per line is written, which is what CloudWatch expects.
func Init() {
	InitWith(os.Stderr, os.Getenv(EnvLevel), os.Getenv(EnvFormat))
}

// InitWith configures the global logger to write to w.
func InitWith(w io.Writer, level, format string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}
