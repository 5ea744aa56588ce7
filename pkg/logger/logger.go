// Package logger provides component-scoped structured logging on top of log/slog.
//
// Call sites name the emitting component and pass optional fields:
//
//	logger.InfoCF("intake", "Reply dispatched", map[string]any{"chat_id": id})
package logger

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[LogLevel]string{
	DEBUG: "debug",
	INFO:  "info",
	WARN:  "warn",
	ERROR: "error",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "info"
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case DEBUG:
		return slog.LevelDebug
	case WARN:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var (
	mu      sync.RWMutex
	level   = new(slog.LevelVar)
	format  = "text"
	current = newSlogLogger(os.Stderr, "text")
)

func newSlogLogger(w io.Writer, f string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(strings.TrimSpace(f), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a level name to a LogLevel. Unknown names map to INFO.
func ParseLevel(name string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Init configures the level and output format ("text" or "json") of the global logger.
func Init(levelName, formatName string) {
	SetLevel(ParseLevel(levelName))
	mu.Lock()
	defer mu.Unlock()
	format = formatName
	current = newSlogLogger(os.Stderr, formatName)
}

// SetOutput redirects log output, keeping the configured format.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	current = newSlogLogger(w, format)
}

func SetLevel(l LogLevel) {
	level.Set(l.slogLevel())
}

func GetLevel() LogLevel {
	switch level.Level() {
	case slog.LevelDebug:
		return DEBUG
	case slog.LevelWarn:
		return WARN
	case slog.LevelError:
		return ERROR
	default:
		return INFO
	}
}

func logMessage(l LogLevel, component, message string, fields map[string]any) {
	mu.RLock()
	lg := current
	mu.RUnlock()

	attrs := make([]slog.Attr, 0, len(fields)+1)
	if component != "" {
		attrs = append(attrs, slog.String("component", component))
	}
	// sorted keys keep text output stable
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		attrs = append(attrs, slog.Any(k, fields[k]))
	}
	lg.LogAttrs(context.Background(), l.slogLevel(), message, attrs...)
}

func DebugC(component, message string) { logMessage(DEBUG, component, message, nil) }

func InfoC(component, message string) { logMessage(INFO, component, message, nil) }

func DebugCF(component, message string, fields map[string]any) {
	logMessage(DEBUG, component, message, fields)
}

func InfoCF(component, message string, fields map[string]any) {
	logMessage(INFO, component, message, fields)
}

func WarnCF(component, message string, fields map[string]any) {
	logMessage(WARN, component, message, fields)
}

func ErrorCF(component, message string, fields map[string]any) {
	logMessage(ERROR, component, message, fields)
}
