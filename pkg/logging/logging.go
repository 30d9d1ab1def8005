// Package logging emits structured diagnostics on stderr, one JSON or
// logfmt-style line per event. Detection output goes to stdout; this
// package is strictly for the operational side channel.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level is an ordered log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
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

// ParseLevel maps a config string to a Level. Unknown strings read as
// info rather than erroring: logging config must never stop the appliance.
func ParseLevel(s string) Level {
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

// Format selects the line encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Logger writes leveled, fielded lines. Safe for concurrent use.
type Logger struct {
	mu     sync.Mutex
	level  Level
	format Format
	output io.Writer
	fields map[string]any
}

type entry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// NewLogger creates a JSON logger at the given level.
func NewLogger(level Level) *Logger {
	return &Logger{
		level:  level,
		format: FormatJSON,
		output: os.Stderr,
		fields: map[string]any{},
	}
}

// WithFields returns a logger that stamps every line with fields, on
// top of any fields already bound.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	merged := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{level: l.level, format: l.format, output: l.output, fields: merged}
}

func (l *Logger) Debug(msg string, fields ...map[string]any) { l.log(LevelDebug, msg, fields...) }
func (l *Logger) Info(msg string, fields ...map[string]any)  { l.log(LevelInfo, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...map[string]any)  { l.log(LevelWarn, msg, fields...) }
func (l *Logger) Error(msg string, fields ...map[string]any) { l.log(LevelError, msg, fields...) }

// ErrorErr logs msg with err bound under the "error" field.
func (l *Logger) ErrorErr(msg string, err error, fields ...map[string]any) {
	combined := map[string]any{"error": err.Error()}
	for _, f := range fields {
		for k, v := range f {
			combined[k] = v
		}
	}
	l.log(LevelError, msg, combined)
}

func (l *Logger) log(level Level, msg string, fields ...map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}

	e := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   msg,
	}
	if len(l.fields) > 0 || len(fields) > 0 {
		e.Fields = make(map[string]any, len(l.fields))
		for k, v := range l.fields {
			e.Fields[k] = v
		}
		for _, f := range fields {
			for k, v := range f {
				e.Fields[k] = v
			}
		}
	}

	if l.format == FormatText {
		l.writeText(&e)
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		fmt.Fprintf(l.output, `{"level":"error","message":"failed to marshal log entry"}`+"\n")
		return
	}
	l.output.Write(append(data, '\n'))
}

// writeText renders key=value pairs with deterministic field order.
func (l *Logger) writeText(e *entry) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", e.Timestamp, e.Level, e.Message)

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}
	b.WriteByte('\n')
	io.WriteString(l.output, b.String())
}

// SetOutput redirects the logger, mainly for tests.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

// SetLevel changes the threshold below which lines are dropped.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetFormat switches between JSON and text lines.
func (l *Logger) SetFormat(format Format) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if format != FormatText {
		format = FormatJSON
	}
	l.format = format
}

var global = NewLogger(LevelInfo)

// SetGlobal replaces the process-wide logger.
func SetGlobal(l *Logger) {
	global = l
}

// Configure applies the state directory's logging config to the global
// logger.
func Configure(level, format string) {
	global.SetLevel(ParseLevel(level))
	global.SetFormat(Format(format))
}

// Debug logs to the global logger.
func Debug(msg string, fields ...map[string]any) { global.Debug(msg, fields...) }

// Info logs to the global logger.
func Info(msg string, fields ...map[string]any) { global.Info(msg, fields...) }

// Warn logs to the global logger.
func Warn(msg string, fields ...map[string]any) { global.Warn(msg, fields...) }

// Error logs to the global logger.
func Error(msg string, fields ...map[string]any) { global.Error(msg, fields...) }

// ErrorErr logs to the global logger with an error.
func ErrorErr(msg string, err error, fields ...map[string]any) {
	global.ErrorErr(msg, err, fields...)
}

// WithFields derives a fielded logger from the global one.
func WithFields(fields map[string]any) *Logger {
	return global.WithFields(fields)
}
