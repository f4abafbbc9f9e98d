package observe

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

// Logger is a minimal structured logging interface.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: logging must be best-effort and must not panic.
type Logger interface {
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	Debug(ctx context.Context, msg string, fields ...Field)

	// With returns a child logger with the fields attached to every entry.
	With(fields ...Field) Logger
}

// Field represents a structured log field.
type Field struct {
	Key   string
	Value any
}

// LogLevel represents a logging level.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLogLevel parses a string log level.
func ParseLogLevel(s string) LogLevel {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// structuredLogger is a JSON structured logger implementation.
type structuredLogger struct {
	level     LogLevel
	writer    io.Writer
	mu        *sync.Mutex
	baseAttrs map[string]any
}

// NewLogger creates a new structured logger with the given level,
// writing to stderr.
func NewLogger(level string) Logger {
	return NewLoggerWithWriter(level, os.Stderr)
}

// NewLoggerWithWriter creates a new structured logger with a custom writer.
func NewLoggerWithWriter(level string, w io.Writer) Logger {
	return &structuredLogger{
		level:     ParseLogLevel(level),
		writer:    w,
		mu:        &sync.Mutex{},
		baseAttrs: make(map[string]any),
	}
}

// With returns a logger with the fields attached to every entry.
func (l *structuredLogger) With(fields ...Field) Logger {
	attrs := make(map[string]any, len(l.baseAttrs)+len(fields))
	for k, v := range l.baseAttrs {
		attrs[k] = v
	}
	for _, f := range fields {
		attrs[f.Key] = f.Value
	}

	return &structuredLogger{
		level:     l.level,
		writer:    l.writer,
		mu:        l.mu,
		baseAttrs: attrs,
	}
}

func (l *structuredLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelInfo, msg, fields)
}

func (l *structuredLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelWarn, msg, fields)
}

func (l *structuredLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelError, msg, fields)
}

func (l *structuredLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelDebug, msg, fields)
}

func (l *structuredLogger) log(ctx context.Context, level LogLevel, msg string, fields []Field) {
	// Filter by level
	if level < l.level {
		return
	}

	// Build log entry
	entry := make(map[string]any, len(l.baseAttrs)+len(fields)+3)

	entry["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level.String()
	entry["msg"] = msg

	for k, v := range l.baseAttrs {
		entry[k] = v
	}

	// Add fields (with credential redaction)
	for _, f := range fields {
		if isRedactedField(f.Key) {
			entry[f.Key] = "[REDACTED]"
		} else {
			entry[f.Key] = f.Value
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return // Silently drop malformed log entries
	}

	l.writer.Write(data)
	l.writer.Write([]byte("\n"))
}

// isRedactedField returns true if the field should be redacted.
// Assumed-role credentials must never reach log output.
func isRedactedField(key string) bool {
	redactedKeys := map[string]bool{
		"secret_access_key": true,
		"session_token":     true,
		"password":          true,
		"secret":            true,
		"token":             true,
		"credential":        true,
	}
	return redactedKeys[key]
}

// nopLogger discards all entries.
type nopLogger struct{}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return nopLogger{}
}

func (nopLogger) Info(ctx context.Context, msg string, fields ...Field)  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...Field)  {}
func (nopLogger) Error(ctx context.Context, msg string, fields ...Field) {}
func (nopLogger) Debug(ctx context.Context, msg string, fields ...Field) {}
func (nopLogger) With(fields ...Field) Logger                            { return nopLogger{} }
