// file: internal/logger/logger.go
// version: 1.0.0
// guid: 9f1e2d3c-4b5a-4697-8877-66554433aa21

package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Level represents the severity of a log message
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	default:
		return "ERROR"
	}
}

// ParseLevel maps a config value to a Level. Unknown values fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger writes level-tagged lines for one component:
//
//	[WARN] resolver: provider musicbrainz unavailable: ...
type Logger struct {
	minLevel  Level
	component string
	out       *log.Logger
}

// New creates a logger writing to stderr with the standard log flags.
func New(component string, minLevel Level) *Logger {
	return NewWithWriter(component, minLevel, os.Stderr)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(component string, minLevel Level, w io.Writer) *Logger {
	return &Logger{
		minLevel:  minLevel,
		component: component,
		out:       log.New(w, "", log.LstdFlags),
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return NewWithWriter("", ErrorLevel+1, io.Discard)
}

// With returns a logger for a sub-component sharing the same output and level.
func (l *Logger) With(component string) *Logger {
	name := component
	if l.component != "" {
		name = l.component + "." + component
	}
	return &Logger{minLevel: l.minLevel, component: name, out: l.out}
}

func (l *Logger) Debugf(format string, args ...any) { l.logf(DebugLevel, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.logf(InfoLevel, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.logf(WarnLevel, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.logf(ErrorLevel, format, args...) }

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return l != nil && level >= l.minLevel
}

func (l *Logger) logf(level Level, format string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if l.component != "" {
		l.out.Printf("[%s] %s: %s", level, l.component, msg)
		return
	}
	l.out.Printf("[%s] %s", level, msg)
}
