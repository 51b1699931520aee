// Package zerolog adapts rs/zerolog to dualstore.Logger.
package zerolog

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/unkn0wn-root/dualstore"
)

var _ dualstore.Logger = Logger{}

// Logger writes dualstore events to L. The zero Logger discards them.
type Logger struct{ L zerolog.Logger }

// New logs JSON lines with a timestamp to w.
func New(w io.Writer) Logger {
	return Wrap(zerolog.New(w).With().Timestamp().Logger())
}

// Wrap tags l's events with component=dualstore.
func Wrap(l zerolog.Logger) Logger {
	return Logger{L: l.With().Str("component", "dualstore").Logger()}
}

func (z Logger) Debug(msg string, f dualstore.Fields) { z.write(z.L.Debug(), msg, f) }
func (z Logger) Info(msg string, f dualstore.Fields)  { z.write(z.L.Info(), msg, f) }
func (z Logger) Warn(msg string, f dualstore.Fields)  { z.write(z.L.Warn(), msg, f) }
func (z Logger) Error(msg string, f dualstore.Fields) { z.write(z.L.Error(), msg, f) }

// write is a no-op for events below the logger's level (e == nil).
func (z Logger) write(e *zerolog.Event, msg string, f dualstore.Fields) {
	if e == nil {
		return
	}
	for k, v := range f {
		if err, ok := v.(error); ok {
			e = e.AnErr(k, err)
			continue
		}
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}
