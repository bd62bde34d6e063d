package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds the process logger. format "console" gives human-readable output for local runs,
// anything else writes JSON lines.
func New(level, format string) zerolog.Logger {
	return NewWithWriter(os.Stdout, level, format)
}

func NewWithWriter(w io.Writer, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w}
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the component name.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
