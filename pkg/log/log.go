// Package log defines the logging interface consumed by the protocol
// adapters and provides a zerolog-backed implementation of it.
//
// Adapters accept a Logger through their config structs and treat a nil
// Logger as "log nothing", so callers that don't care about logging can
// leave the field unset.
package log

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is the minimal leveled logging surface used throughout the runtime.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
}

type zeroLogger struct {
	l zerolog.Logger
}

// New returns a Logger writing JSON lines to stdout, tagged with the given
// role label (e.g. "server", "client") for filtering.
func New(role string) Logger {
	l := zerolog.New(os.Stdout).With().
		Str("role", role).
		Timestamp().
		Logger()
	return &zeroLogger{l: l}
}

// NewWithLevel is New with a minimum level applied.
func NewWithLevel(role string, level zerolog.Level) Logger {
	l := zerolog.New(os.Stdout).Level(level).With().
		Str("role", role).
		Timestamp().
		Logger()
	return &zeroLogger{l: l}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &zeroLogger{l: zerolog.Nop()}
}

func (z *zeroLogger) Debug(msg string) { z.l.Debug().Msg(msg) }
func (z *zeroLogger) Info(msg string)  { z.l.Info().Msg(msg) }
func (z *zeroLogger) Warn(msg string)  { z.l.Warn().Msg(msg) }
func (z *zeroLogger) Error(msg string) { z.l.Error().Msg(msg) }
