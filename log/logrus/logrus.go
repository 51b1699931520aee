// Package logrus adapts a logrus entry to dualstore.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/dualstore"
)

var _ dualstore.Logger = Logger{}

// Logger writes through E; a nil E uses the logrus standard logger.
type Logger struct{ E *logrus.Entry }

func New(l *logrus.Logger) Logger {
	return Logger{E: l.WithField("component", "dualstore")}
}

func (l Logger) entry(f dualstore.Fields) *logrus.Entry {
	e := l.E
	if e == nil {
		e = logrus.NewEntry(logrus.StandardLogger())
	}
	if len(f) == 0 {
		return e
	}
	if err, ok := f["err"].(error); ok {
		e = e.WithError(err)
		rest := make(logrus.Fields, len(f)-1)
		for k, v := range f {
			if k != "err" {
				rest[k] = v
			}
		}
		return e.WithFields(rest)
	}
	return e.WithFields(logrus.Fields(f))
}

func (l Logger) Debug(msg string, f dualstore.Fields) { l.entry(f).Debug(msg) }
func (l Logger) Info(msg string, f dualstore.Fields)  { l.entry(f).Info(msg) }
func (l Logger) Warn(msg string, f dualstore.Fields)  { l.entry(f).Warn(msg) }
func (l Logger) Error(msg string, f dualstore.Fields) { l.entry(f).Error(msg) }
