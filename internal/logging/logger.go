// Package logging provides structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json console"`
}

// DefaultConfig returns the CLI logging defaults.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "console",
	}
}

// Init initializes the global zerolog logger. Output goes to stderr so that
// stdout stays free for command output.
func Init(cfg Config) {
	InitTo(os.Stderr, cfg)
}

// InitTo initializes the global logger writing to w.
func InitTo(w io.Writer, cfg Config) {
	zerolog.TimeFieldFormat = time.RFC3339

	levelName := cfg.Level
	if env := os.Getenv("TRANSCRIBER_LOG_LEVEL"); env != "" {
		levelName = env
	}
	level, err := zerolog.ParseLevel(strings.ToLower(levelName))
	if err != nil || levelName == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := w
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.Kitchen,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Str("service", "lecture-transcriber").
		Logger()
}

// Logger returns the global logger.
func Logger() zerolog.Logger {
	return log.Logger
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}

// WithRun returns a logger with pipeline run context.
func WithRun(runID, kind, source string) zerolog.Logger {
	return log.With().
		Str("component", "pipeline").
		Str("run_id", runID).
		Str("kind", kind).
		Str("source", source).
		Logger()
}
