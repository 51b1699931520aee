// Package slog adapts a *slog.Logger to dualstore.Logger.
package slog

import (
	"context"
	stdslog "log/slog"

	"github.com/unkn0wn-root/dualstore"
)

var _ dualstore.Logger = Logger{}

// Logger writes to L (slog.Default() when nil). Group, when set, nests every field.
type Logger struct {
	L     *stdslog.Logger
	Group string
}

func (s Logger) Debug(msg string, f dualstore.Fields) { s.log(stdslog.LevelDebug, msg, f) }
func (s Logger) Info(msg string, f dualstore.Fields)  { s.log(stdslog.LevelInfo, msg, f) }
func (s Logger) Warn(msg string, f dualstore.Fields)  { s.log(stdslog.LevelWarn, msg, f) }
func (s Logger) Error(msg string, f dualstore.Fields) { s.log(stdslog.LevelError, msg, f) }

func (s Logger) log(lvl stdslog.Level, msg string, f dualstore.Fields) {
	l := s.L
	if l == nil {
		l = stdslog.Default()
	}
	ctx := context.Background()
	if !l.Enabled(ctx, lvl) {
		return
	}
	a := attrs(f)
	if s.Group != "" && len(a) > 0 {
		a = []stdslog.Attr{{Key: s.Group, Value: stdslog.GroupValue(a...)}}
	}
	l.LogAttrs(ctx, lvl, msg, a...)
}

func attrs(f dualstore.Fields) []stdslog.Attr {
	if len(f) == 0 {
		return nil
	}
	out := make([]stdslog.Attr, 0, len(f))
	for k, v := range f {
		out = append(out, stdslog.Any(k, v))
	}
	return out
}
