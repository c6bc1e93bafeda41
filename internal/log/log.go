// Package log wraps logrus with the CLI's verbosity-counting model: a
// single integer knob (raised by -v, lowered by -q) instead of named
// levels, matching §6/§7's "level 0 silent, 1 warn, 2 info, 3 debug".
package log

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Verbosity is the CLI's own counting scale, distinct from logrus's named
// levels: 0 silent, 1 warn (the default), 2 info, 3 debug.
type Verbosity int

const (
	Silent Verbosity = iota
	Warn
	Info
	Debug
)

// Clamp keeps a verbosity derived from -v/-q repeat counts within range.
func Clamp(v int) Verbosity {
	switch {
	case v < int(Silent):
		return Silent
	case v > int(Debug):
		return Debug
	default:
		return Verbosity(v)
	}
}

// logrusLevel maps the CLI's four-step verbosity count straight to a
// logrus.Level. Silent has no logrus equivalent (logrus always logs at
// some level), so it maps to PanicLevel, the lowest one, which mutes every
// Warnf/Infof/Debugf call this Logger makes.
func (v Verbosity) logrusLevel() logrus.Level {
	switch v {
	case Silent:
		return logrus.PanicLevel
	case Warn:
		return logrus.WarnLevel
	case Info:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}

// Logger is a thin façade over a *logrus.Logger configured at the given
// Verbosity.
type Logger struct {
	entry *logrus.Logger
}

// New builds a Logger writing to w at verbosity v.
func New(w io.Writer, v Verbosity) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(v.logrusLevel())
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return &Logger{entry: l}
}

// Warnf logs a format-level or path-skip warning (verbosity >= 1).
func (l *Logger) Warnf(format string, args ...any) {
	l.entry.Warnf(format, args...)
}

// Infof logs a classification/identification message (verbosity >= 2).
func (l *Logger) Infof(format string, args ...any) {
	l.entry.Infof(format, args...)
}

// Debugf logs internal Tee/spill bookkeeping (verbosity >= 3).
func (l *Logger) Debugf(format string, args ...any) {
	l.entry.Debugf(format, args...)
}
