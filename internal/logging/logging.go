// Package logging builds the zerolog.Logger every other package receives
// as a side channel: structured fields in, nothing about resolution
// behavior ever decided here.
package logging

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger at the given level ("debug", "info", "warn",
// "error") writing in the given format ("console" for human-readable
// output, anything else for newline-delimited JSON).
func New(level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("parse log level %q: %w", level, err)
	}

	var writer = os.Stderr
	logger := zerolog.New(writer).With().Timestamp().Logger().Level(lvl)

	if format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: writer}).With().Timestamp().Logger().Level(lvl)
	}

	return logger, nil
}
