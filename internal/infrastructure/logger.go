package infrastructure

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger creates the process-wide logger with the specified level.
func NewLogger(level string) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLogLevel(level))
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().
		Timestamp().
		Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
