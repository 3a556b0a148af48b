// Package logger builds the process-wide zerolog.Logger.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls how the logger is built.
type Config struct {
	// Level is one of zerolog's level names (debug, info, warn, error). An
	// unrecognized value falls back to info.
	Level string
	// Pretty enables zerolog's human-readable console writer, for local
	// development. Production deployments should leave this false for
	// structured JSON output.
	Pretty bool
}

// New builds a zerolog.Logger with the given configuration.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var writer = os.Stderr
	log := zerolog.New(writer).Level(level).With().Timestamp().Logger()

	if cfg.Pretty {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	return log
}
