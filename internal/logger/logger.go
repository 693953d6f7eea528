package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// Global logger instance
	Logger zerolog.Logger
)

// Component loggers are created at package init across the codebase, so the global
// logger has a usable console writer before Initialize runs.
func init() {
	Logger = newLogger(consoleWriter(os.Stdout))
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    false,
	}
}

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).
		With().
		Timestamp().
		Caller().
		Logger()
}

// Initialize sets up the global logger. format "json" writes structured lines
// (for log shippers), anything else writes the human-readable console format.
func Initialize(logLevel string, format string) {
	zerolog.TimeFieldFormat = time.RFC3339

	var w io.Writer = consoleWriter(os.Stdout)
	if strings.EqualFold(format, "json") {
		w = os.Stdout
	}
	Logger = newLogger(w)

	zerolog.SetGlobalLevel(ParseLevel(logLevel))

	// Replace standard log with zerolog
	log.Logger = Logger
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(logLevel string) zerolog.Level {
	switch strings.ToLower(logLevel) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// GetForComponent returns a logger with a component field for better filtering
func GetForComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// ForInstance returns a component logger scoped to one joint instance.
func ForInstance(component, instanceID string) zerolog.Logger {
	return Logger.With().Str("component", component).Str("instance", instanceID).Logger()
}
