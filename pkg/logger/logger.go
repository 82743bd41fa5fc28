// Package logger provides structured logging utilities.
package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents logging severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// String returns the string representation of the level.
func (l Level) String() string {
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
		return "INFO"
	}
}

// ParseLevel parses a string into a Level.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// sink is shared by a logger and everything derived from it so writes from
// named children never interleave.
type sink struct {
	output io.Writer
	format string
	mu     sync.Mutex
}

// Logger is a structured logger writing JSON lines or console lines.
type Logger struct {
	sink   *sink
	level  Level
	name   string
	fields map[string]interface{}
}

// New creates a new JSON Logger with the specified output and level.
func New(output io.Writer, level string) *Logger {
	return NewWithFormat(output, level, FormatJSON)
}

// NewWithFormat creates a Logger with an explicit output format.
func NewWithFormat(output io.Writer, level, format string) *Logger {
	if output == nil {
		output = os.Stdout
	}
	if format != FormatConsole {
		format = FormatJSON
	}
	return &Logger{
		sink:   &sink{output: output, format: format},
		level:  ParseLevel(level),
		fields: make(map[string]interface{}),
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return New(io.Discard, "error")
}

// With returns a new Logger with additional fields.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	child := l.clone()
	for i := 0; i < len(keyvals)-1; i += 2 {
		if key, ok := keyvals[i].(string); ok {
			child.fields[key] = keyvals[i+1]
		}
	}
	return child
}

// Named returns a Logger whose entries carry a component name. Nested names
// are joined with dots.
func (l *Logger) Named(name string) *Logger {
	child := l.clone()
	if child.name == "" {
		child.name = name
	} else {
		child.name = child.name + "." + name
	}
	return child
}

// Enabled reports whether entries at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return level >= l.level
}

// Debug logs a message at debug level.
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.log(LevelDebug, msg, keyvals...)
}

// Info logs a message at info level.
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.log(LevelInfo, msg, keyvals...)
}

// Warn logs a message at warn level.
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.log(LevelWarn, msg, keyvals...)
}

// Error logs a message at error level.
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.log(LevelError, msg, keyvals...)
}

// Writer returns an io.Writer that logs each written line at level.
func (l *Logger) Writer(level Level) io.Writer {
	return &lineWriter{log: l, level: level}
}

func (l *Logger) clone() *Logger {
	fields := make(map[string]interface{}, len(l.fields))
	for k, v := range l.fields {
		fields[k] = v
	}
	return &Logger{sink: l.sink, level: l.level, name: l.name, fields: fields}
}

// log writes a log entry if the level is enabled.
func (l *Logger) log(level Level, msg string, keyvals ...interface{}) {
	if !l.Enabled(level) {
		return
	}

	entry := make(map[string]interface{}, len(l.fields)+len(keyvals)/2+4)
	for k, v := range l.fields {
		entry[k] = v
	}
	for i := 0; i < len(keyvals)-1; i += 2 {
		if key, ok := keyvals[i].(string); ok {
			entry[key] = keyvals[i+1]
		}
	}

	now := time.Now().UTC()
	var data []byte
	if l.sink.format == FormatConsole {
		data = l.console(now, level, msg, entry)
	} else {
		entry["time"] = now.Format(time.RFC3339)
		entry["level"] = level.String()
		entry["msg"] = msg
		if l.name != "" {
			entry["logger"] = l.name
		}
		var err error
		if data, err = json.Marshal(entry); err != nil {
			return
		}
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	_, _ = l.sink.output.Write(data)
	_, _ = l.sink.output.Write([]byte("\n"))
}

// console renders "15:04:05 INFO  name: msg key=value ..." with sorted keys.
func (l *Logger) console(now time.Time, level Level, msg string, entry map[string]interface{}) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %-5s ", now.Format("15:04:05"), level.String())
	if l.name != "" {
		b.WriteString(l.name)
		b.WriteString(": ")
	}
	b.WriteString(msg)

	keys := make([]string, 0, len(entry))
	for k := range entry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry[k])
	}
	return b.Bytes()
}

// lineWriter splits writes into lines and logs each one.
type lineWriter struct {
	log   *Logger
	level Level
	buf   []byte
	mu    sync.Mutex
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(w.buf[:i]), "\r")
		w.buf = w.buf[i+1:]
		if line != "" {
			w.log.log(w.level, line)
		}
	}
	return len(p), nil
}
