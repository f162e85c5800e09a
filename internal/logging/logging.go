/*-------------------------------------------------------------------------
 *
 * Postgres Schema MCP Server - Structured Logging
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// envLogLevel overrides the configured level when set
const envLogLevel = "PGSCHEMA_LOG_LEVEL"

var (
	mu     sync.RWMutex
	logger = newLogger(os.Stderr)
)

func init() {
	if level := os.Getenv(envLogLevel); level != "" {
		if parsed, ok := ParseLevel(level); ok {
			SetLevel(parsed)
		}
	}
}

// newLogger builds the process logger. stdout is reserved for the
// stdio protocol stream, so everything goes to stderr by default.
func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(jsonFormatter())
	return l
}

func jsonFormatter() logrus.Formatter {
	return &logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "timestamp",
			logrus.FieldKeyMsg:  "message",
		},
	}
}

// String returns the string representation of a log level
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
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name into a LogLevel
func ParseLevel(name string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	}
	return LevelInfo, false
}

func (l LogLevel) toLogrus() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Configure applies a level name and an output format ("json" or "text").
// An environment override of the level still wins.
func Configure(level, format string) error {
	parsed, ok := ParseLevel(level)
	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}
	if env := os.Getenv(envLogLevel); env != "" {
		if envLevel, envOK := ParseLevel(env); envOK {
			parsed = envLevel
		}
	}

	mu.Lock()
	defer mu.Unlock()

	switch strings.ToLower(format) {
	case "", "json":
		logger.SetFormatter(jsonFormatter())
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			DisableColors: true,
			FullTimestamp: true,
		})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	logger.SetLevel(parsed.toLogrus())
	return nil
}

// SetOutput redirects log output, mainly for tests
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
}

// fields converts alternating key/value pairs into logrus fields.
// A trailing key without a value is kept under "!BADKEY".
func fields(keyvals []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		if i+1 >= len(keyvals) {
			f["!BADKEY"] = keyvals[i]
			break
		}
		key := fmt.Sprintf("%v", keyvals[i])
		if err, ok := keyvals[i+1].(error); ok {
			f[key] = err.Error()
			continue
		}
		f[key] = keyvals[i+1]
	}
	return f
}

// With returns an entry carrying the given fields, for component loggers
func With(keyvals ...interface{}) *logrus.Entry {
	mu.RLock()
	defer mu.RUnlock()
	return logger.WithFields(fields(keyvals))
}

func log(level LogLevel, message string, keyvals ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()

	entry := logger.WithFields(fields(keyvals))
	switch level {
	case LevelDebug:
		entry.Debug(message)
	case LevelInfo:
		entry.Info(message)
	case LevelWarn:
		entry.Warn(message)
	default:
		entry.Error(message)
	}
}

// Debug logs a debug-level message with structured fields
func Debug(message string, keyvals ...interface{}) {
	log(LevelDebug, message, keyvals...)
}

// Info logs an info-level message with structured fields
func Info(message string, keyvals ...interface{}) {
	log(LevelInfo, message, keyvals...)
}

// Warn logs a warning-level message with structured fields
func Warn(message string, keyvals ...interface{}) {
	log(LevelWarn, message, keyvals...)
}

// Error logs an error-level message with structured fields
func Error(message string, keyvals ...interface{}) {
	log(LevelError, message, keyvals...)
}

// SetLevel sets the minimum log level to output
func SetLevel(level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetLevel(level.toLogrus())
}

// GetLevel returns the current minimum log level
func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	switch logger.GetLevel() {
	case logrus.DebugLevel, logrus.TraceLevel:
		return LevelDebug
	case logrus.InfoLevel:
		return LevelInfo
	case logrus.WarnLevel:
		return LevelWarn
	default:
		return LevelError
	}
}
