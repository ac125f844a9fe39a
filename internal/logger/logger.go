// Package logger configures the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log is the process-wide logger. Init replaces it; Module derives from it.
var Log = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Init initializes the global logger with the specified level.
// Valid levels: debug, info, warn, error. When console is true the output is
// human readable instead of JSON.
func Init(level string, w io.Writer, console bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	Log = zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

// Module returns a logger with a module field for scoped logging.
func Module(name string) zerolog.Logger {
	return Log.With().Str("module", name).Logger()
}
