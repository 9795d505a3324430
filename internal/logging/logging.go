// Package logging wires up the process-wide zerolog logger, promoted from
// the teacher's bare fmt.Printf logging to structured logging, grounded on
// uncord-chat/uncord-server's `zerolog.New(os.Stderr).With().Timestamp().Logger()`
// top-level setup in cmd/uncord/main.go.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New builds a component-scoped logger. level follows zerolog's level
// strings ("debug", "info", "warn", "error"); an unrecognized or empty
// level defaults to "info".
func New(component string, out io.Writer, level string) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}
