// Package zap adapts a *zap.Logger to dualstore.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/dualstore"
)

var _ dualstore.Logger = Logger{}

// Logger writes dualstore events to L. A nil L discards them.
type Logger struct{ L *zap.Logger }

// New names the logger "dualstore" so its events can be filtered.
func New(l *zap.Logger) Logger { return Logger{L: l.Named("dualstore")} }

func (z Logger) Debug(msg string, f dualstore.Fields) { z.log(zap.DebugLevel, msg, f) }
func (z Logger) Info(msg string, f dualstore.Fields)  { z.log(zap.InfoLevel, msg, f) }
func (z Logger) Warn(msg string, f dualstore.Fields)  { z.log(zap.WarnLevel, msg, f) }
func (z Logger) Error(msg string, f dualstore.Fields) { z.log(zap.ErrorLevel, msg, f) }

func (z Logger) log(lvl zapcore.Level, msg string, f dualstore.Fields) {
	if z.L == nil {
		return
	}
	if ce := z.L.Check(lvl, msg); ce != nil {
		ce.Write(zf(f)...)
	}
}

// zf emits fields in key order; errors are logged with zap.NamedError.
func zf(f dualstore.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
