// Package log provides the logging primitives used throughout jobmon.
package log

import (
	"fmt"
	"io"
	"log"
	"runtime"
	"strings"
)

// Level is a log severity threshold.
type Level int

const (
	// DEBUG is the most verbose level.
	DEBUG Level = iota
	// INFO reports routine lifecycle events.
	INFO
	// WARN reports recoverable, non-fatal problems.
	WARN
	// ERROR reports failures that affect a single operation.
	ERROR
	// CRITICAL reports failures that prevent the daemon from running.
	CRITICAL
)

// ParseLevel converts a config string into a Level. Unrecognized values
// default to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "CRITICAL":
		return CRITICAL
	default:
		return INFO
	}
}

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case CRITICAL:
		return "CRITICAL"
	default:
		return "INFO"
	}
}

// New creates a Logger instance that writes to w, prefixed with prefix,
// filtering out messages below level.
func New(w io.Writer, prefix string, level Level) *Logger {
	return &Logger{
		Logger: log.New(
			w,
			prefix+" ",
			log.Ldate|log.Ltime|log.Lmicroseconds|log.LUTC|log.Lmsgprefix,
		),
		level: level,
	}
}

// Logger writes leveled, prefixed messages to an io.Writer. It is
// thread-safe; the embedded *log.Logger serializes access to the Writer.
type Logger struct {
	*log.Logger
	level Level
}

// Debugf prints a debug-level message.
func (l *Logger) Debugf(msg string, args ...interface{}) { l.logAt(DEBUG, msg, args...) }

// Infof prints an info-level message.
func (l *Logger) Infof(msg string, args ...interface{}) { l.logAt(INFO, msg, args...) }

// Warnf prints a warn-level message.
func (l *Logger) Warnf(msg string, args ...interface{}) { l.logAt(WARN, msg, args...) }

// Errorf prints an error-level message.
func (l *Logger) Errorf(msg string, args ...interface{}) { l.logAt(ERROR, msg, args...) }

// Criticalf prints a critical-level message. The caller is responsible for
// exiting the process; Criticalf does not call os.Exit itself.
func (l *Logger) Criticalf(msg string, args ...interface{}) { l.logAt(CRITICAL, msg, args...) }

func (l *Logger) logAt(level Level, msg string, args ...interface{}) {
	if level < l.level {
		return
	}
	file, line := caller(3)
	l.Printf("[%s] %s:%d --- %s", level, file, line, fmt.Sprintf(msg, args...))
}

func caller(depth int) (string, int) {
	_, file, line, ok := runtime.Caller(depth)
	if !ok {
		return "???", 0
	}
	parts := strings.Split(file, "/")
	if len(parts) > 3 {
		file = strings.Join(parts[len(parts)-3:], "/")
	}
	return file, line
}
