package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/cuemby/herald/pkg/types"
	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance. It discards output until Init
	// is called.
	Logger = zerolog.Nop()
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger
func Init(cfg Config) {
	// Set log level
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	// Configure output
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Use JSON or console output
	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithAddress creates a child logger with the local component address
func WithAddress(addr types.Address) zerolog.Logger {
	return Logger.With().Stringer("address", addr).Logger()
}

// WithPeer creates a child logger with a remote component address
func WithPeer(component string, peer types.Address) zerolog.Logger {
	return Logger.With().Str("component", component).Stringer("peer", peer).Logger()
}

// ParseLevel maps a configuration string to a Level, defaulting to info
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(s)) {
	case DebugLevel, InfoLevel, WarnLevel, ErrorLevel:
		return Level(strings.ToLower(s))
	default:
		return InfoLevel
	}
}
