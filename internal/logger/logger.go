// Package logger provides a configured zerolog logger.
package logger

import (
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
)

// New returns a zerolog.Logger configured for the engine. Call sites should
// use .Stack() on error events to include stacks.
func New(component string) zerolog.Logger {
	// Configure zerolog to work with github.com/pkg/errors: marshal stack
	// traces when present, and attach one otherwise so .Stack() always has
	// something to render.
	zerolog.ErrorStackMarshaler = func(err error) interface{} {
		type stackTracer interface{ StackTrace() pkgerrors.StackTrace }
		if _, ok := err.(stackTracer); !ok {
			err = pkgerrors.WithStack(err)
		}
		return zpkgerrors.MarshalStack(err)
	}

	return zerolog.New(os.Stdout).With().
		Str("component", component).
		Timestamp().
		Logger()
}
