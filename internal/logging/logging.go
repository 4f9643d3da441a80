// Package logging configures zerolog for the binaries.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SetLevel configures the global zerolog level. Supported values
// (case-insensitive): debug, info, warn, warning, error. Anything else
// means info.
func SetLevel(lvl string) zerolog.Level {
	level := zerolog.InfoLevel
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn", "warning":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)
	return level
}

// New sets the global level and returns a root logger tagged with service.
// Pretty output is meant for local development.
func New(service, level string, pretty bool) zerolog.Logger {
	return newLogger(os.Stderr, service, level, pretty)
}

func newLogger(w io.Writer, service, level string, pretty bool) zerolog.Logger {
	SetLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).With().Timestamp().Str("service", service).Logger()
}
