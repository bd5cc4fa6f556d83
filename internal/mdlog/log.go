// Package mdlog provides the leveled logger used across MindooDB. It wraps
// the standard library's log.Logger the way cmd/vaultd logs to stderr with a
// prefix; no third-party logging framework is introduced.
package mdlog

import (
	"log"
	"os"
)

// Level is the process-wide log level. It is read once at startup (see
// internal/config) and never mutated afterwards.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelSilent
)

// Logger is a small leveled wrapper around the standard logger.
type Logger struct {
	level Level
	std   *log.Logger
}

// New creates a Logger writing to stderr with the given prefix and level.
func New(prefix string, level Level) *Logger {
	return &Logger{
		level: level,
		std:   log.New(os.Stderr, prefix, log.LstdFlags),
	}
}

func (l *Logger) Debugf(format string, args ...any) { l.logAt(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.logAt(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.logAt(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.logAt(LevelError, format, args...) }

func (l *Logger) logAt(level Level, format string, args ...any) {
	if l == nil || level < l.level {
		return
	}
	l.std.Printf(tag(level)+format, args...)
}

func tag(level Level) string {
	switch level {
	case LevelDebug:
		return "[DEBUG] "
	case LevelWarn:
		return "[WARN] "
	case LevelError:
		return "[ERROR] "
	default:
		return "[INFO] "
	}
}

// Default is a process-wide logger used where no explicit Logger is threaded
// through; components still prefer an injected *Logger where one is given to
// them (e.g. via Tenant/Config).
var Default = New("mindoodb: ", LevelInfo)
