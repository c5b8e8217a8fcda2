package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string    // trace, debug, info, warn, error
	Format     string    // json, console
	TimeFormat string    // RFC3339 by default
	Output     string    // stdout, stderr, or file path
	Writer     io.Writer // overrides Output when set
}

// DefaultConfig returns console logging at info level to stderr, leaving
// stdout free for encoded documents.
func DefaultConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		Format:     "console",
		TimeFormat: time.RFC3339,
		Output:     "stderr",
	}
}

// New builds a logger from config without touching global state.
func New(config LogConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(config.Level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level %q: %w", config.Level, err)
	}
	if config.TimeFormat == "" {
		config.TimeFormat = time.RFC3339
	}

	output := config.Writer
	if output == nil {
		switch config.Output {
		case "", "stderr":
			output = os.Stderr
		case "stdout":
			output = os.Stdout
		default:
			file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return zerolog.Nop(), fmt.Errorf("open log file: %w", err)
			}
			output = file
		}
	}

	switch strings.ToLower(config.Format) {
	case "json":
	case "", "console":
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: config.TimeFormat}
	default:
		return zerolog.Nop(), fmt.Errorf("log format %q: want json or console", config.Format)
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger(), nil
}

// Setup initializes the global logger with the provided configuration
func Setup(config LogConfig) error {
	l, err := New(config)
	if err != nil {
		return err
	}
	log.Logger = l
	return nil
}

// GetLogger returns the global logger
func GetLogger() zerolog.Logger {
	return log.Logger
}

// FromContext returns the logger stored in ctx, or the global logger.
func FromContext(ctx context.Context) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return log.Logger
}

// WithComponent returns a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// WithRequestID returns a logger with a request ID field
func WithRequestID(base zerolog.Logger, requestID string) zerolog.Logger {
	return base.With().Str("request_id", requestID).Logger()
}
