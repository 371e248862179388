// Package logging configures the zerolog logger used by the command line tool.
package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level maps a -v count to a zerolog level.
func Level(verbosity int) zerolog.Level {
	switch verbosity {
	case 0:
		return zerolog.WarnLevel
	case 1:
		return zerolog.InfoLevel
	case 2:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// New builds a console logger writing to out.
func New(out io.Writer, verbosity int) zerolog.Logger {
	consoleWriter := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.Kitchen,
		NoColor:    os.Getenv("NO_COLOR") != "",
	}

	logger := zerolog.New(consoleWriter).Level(Level(verbosity)).With().Timestamp().Logger()

	// Add caller information for debug and trace levels
	if verbosity >= 2 {
		logger = logger.With().Caller().Logger()
	}
	return logger
}

// SetupLogger configures the global logger based on verbosity level.
// Build agents capture stderr, so that is where it writes.
func SetupLogger(verbosity int) {
	zerolog.SetGlobalLevel(Level(verbosity))
	log.Logger = New(os.Stderr, verbosity)
	log.Debug().Int("verbosity", verbosity).Msg("Logger initialized")
}

// WithContext attaches the global logger to ctx so library calls that log
// through zerolog.Ctx pick it up.
func WithContext(ctx context.Context) context.Context {
	return log.Logger.WithContext(ctx)
}

// GetLogger returns a contextualized logger with the given name
func GetLogger(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// LogOperationStart logs the start of an operation and returns a function to log its completion
func LogOperationStart(logger zerolog.Logger, operation string) func() {
	start := time.Now()
	logger.Debug().
		Str("operation", operation).
		Msg("Operation started")

	return func() {
		logger.Debug().
			Str("operation", operation).
			Dur("duration", time.Since(start)).
			Msg("Operation completed")
	}
}
