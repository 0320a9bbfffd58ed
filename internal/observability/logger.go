// Package observability provides structured logging, metrics, and health checks
// for the chat pipeline.
package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel orders log severities; entries below the logger's minimum
// are dropped.
type LogLevel int8

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// ParseLevel maps a level name to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// LogEntry is one JSON line of output.
type LogEntry struct {
	Timestamp     time.Time              `json:"timestamp"`
	Level         string                 `json:"level"`
	Message       string                 `json:"message"`
	Component     string                 `json:"component,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	UserID        string                 `json:"user_id,omitempty"`
	Fields        map[string]interface{} `json:"fields,omitempty"`
}

// Logger emits JSON lines tagged with the component name and whatever
// correlation and user IDs ride on the request context.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	minLevel  LogLevel
	component string
}

// NewLogger builds a logger for one component. The minimum level comes
// from the LOG_LEVEL environment variable and defaults to info.
func NewLogger(component string) *Logger {
	return &Logger{
		output:    os.Stdout,
		minLevel:  ParseLevel(os.Getenv("LOG_LEVEL")),
		component: component,
	}
}

// WithOutput redirects log output, mainly for tests.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	l.output = w
	return l
}

// WithLevel overrides the minimum level.
func (l *Logger) WithLevel(level LogLevel) *Logger {
	l.minLevel = level
	return l
}

func (l *Logger) emit(ctx context.Context, level LogLevel, message string, fields map[string]interface{}) {
	if level < l.minLevel {
		return
	}

	entry := LogEntry{
		Timestamp:     time.Now().UTC(),
		Level:         level.String(),
		Message:       message,
		Component:     l.component,
		CorrelationID: GetCorrelationID(ctx),
		UserID:        GetUserID(ctx),
		Fields:        fields,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "drop unencodable log entry: %v\n", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write(append(line, '\n'))
}

func (l *Logger) Debug(ctx context.Context, message string, fields map[string]interface{}) {
	l.emit(ctx, LevelDebug, message, fields)
}

func (l *Logger) Info(ctx context.Context, message string, fields map[string]interface{}) {
	l.emit(ctx, LevelInfo, message, fields)
}

func (l *Logger) Warn(ctx context.Context, message string, fields map[string]interface{}) {
	l.emit(ctx, LevelWarn, message, fields)
}

// Error logs at error level, folding the error into the fields.
func (l *Logger) Error(ctx context.Context, message string, err error, fields map[string]interface{}) {
	if err != nil {
		if fields == nil {
			fields = make(map[string]interface{}, 1)
		}
		fields["error"] = err.Error()
	}
	l.emit(ctx, LevelError, message, fields)
}

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	userIDKey        contextKey = "user_id"
)

// WithCorrelationID tags the context with a request correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// GetCorrelationID returns the correlation ID on the context, if any.
func GetCorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// WithUserID tags the context with the authenticated user's ID.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// GetUserID returns the user ID on the context, if any.
func GetUserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}
