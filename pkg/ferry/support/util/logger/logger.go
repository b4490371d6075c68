// Package logger provides the leveled logging utility used across Ferry.
// It wraps the standard `log` package, filters messages by level and adds
// context-scoped loggers (see Scope) for per-record and per-job output.
package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync/atomic"
)

// LogLevel is a type representing the logging level.
type LogLevel int32

const (
	// LevelDebug is used for detailed debugging information.
	LevelDebug LogLevel = iota
	// LevelInfo is used for general informational messages.
	LevelInfo
	// LevelWarn is used for potential issues.
	LevelWarn
	// LevelError is used for error messages.
	LevelError
	// LevelCritical is used for faults that pre-empt normal processing.
	// Unlike LevelFatal it never terminates the process.
	LevelCritical
	// LevelFatal is used for messages that terminate the application.
	LevelFatal
)

// String returns the bracketed label written in front of each message.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// logLevel is the current global level. Worker goroutines read it concurrently.
var logLevel atomic.Int32

func init() {
	logLevel.Store(int32(LevelInfo))
}

// SetLogLevel sets the global log level.
// Valid values are "DEBUG", "INFO", "WARN", "ERROR", "CRITICAL", "FATAL" (case-insensitive).
// An unknown value falls back to INFO and prints a notice.
func SetLogLevel(level string) {
	switch strings.ToUpper(level) {
	case "INFO":
		logLevel.Store(int32(LevelInfo))
	case "WARN":
		logLevel.Store(int32(LevelWarn))
	case "ERROR":
		logLevel.Store(int32(LevelError))
	case "CRITICAL":
		logLevel.Store(int32(LevelCritical))
	case "FATAL":
		logLevel.Store(int32(LevelFatal))
	case "DEBUG":
		logLevel.Store(int32(LevelDebug))
	default:
		fmt.Printf("Unknown log level '%s' specified. Defaulting to INFO level.\n", level)
		logLevel.Store(int32(LevelInfo))
	}
}

// GetLogLevel returns the current global log level.
func GetLogLevel() LogLevel {
	return LogLevel(logLevel.Load())
}

// SetOutput redirects all log output. Worker processes point it at stderr so
// stdout stays free for capability output.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

// Enabled reports whether messages at the given level are currently written.
func Enabled(level LogLevel) bool {
	return GetLogLevel() <= level
}

func output(level LogLevel, format string, v ...interface{}) {
	if !Enabled(level) {
		return
	}
	log.Printf("["+level.String()+"] "+format, v...)
}

// Debugf formats and outputs a DEBUG level log message.
//
// format: A format string in the same format as `fmt.Printf`.
// v: Arguments to pass to the format string.
func Debugf(format string, v ...interface{}) {
	output(LevelDebug, format, v...)
}

// Infof formats and outputs an INFO level log message.
//
// format: A format string in the same format as `fmt.Printf`.
// v: Arguments to pass to the format string.
func Infof(format string, v ...interface{}) {
	output(LevelInfo, format, v...)
}

// Warnf formats and outputs a WARN level log message.
func Warnf(format string, v ...interface{}) {
	output(LevelWarn, format, v...)
}

// Errorf formats and outputs an ERROR level log message.
func Errorf(format string, v ...interface{}) {
	output(LevelError, format, v...)
}

// Criticalf formats and outputs a CRITICAL level log message.
func Criticalf(format string, v ...interface{}) {
	output(LevelCritical, format, v...)
}

// Fatalf outputs a FATAL level log message and terminates the program with os.Exit(1).
func Fatalf(format string, v ...interface{}) {
	log.Fatalf("[FATAL] "+format, v...)
}
