package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_Info(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info")

	log.Info("check passed", "check", "stream-updates")

	entry := decode(t, &buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "check passed", entry["msg"])
	assert.Equal(t, "stream-updates", entry["check"])
	assert.NotEmpty(t, entry["time"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		logFunc   func(*Logger)
		shouldLog bool
	}{
		{"debug logs at debug level", "debug", func(l *Logger) { l.Debug("msg") }, true},
		{"debug skipped at info level", "info", func(l *Logger) { l.Debug("msg") }, false},
		{"warn logs at info level", "info", func(l *Logger) { l.Warn("msg") }, true},
		{"info skipped at warn level", "warn", func(l *Logger) { l.Info("msg") }, false},
		{"error logs at error level", "error", func(l *Logger) { l.Error("msg") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.logFunc(New(&buf, tt.level))

			if tt.shouldLog {
				assert.NotEmpty(t, buf.String())
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info")

	child := log.With("run_id", "r-1").With("suite", "piwebapi", 42, "ignored")
	child.Info("starting")

	entry := decode(t, &buf)
	assert.Equal(t, "r-1", entry["run_id"])
	assert.Equal(t, "piwebapi", entry["suite"])
	_, hasIntKey := entry["42"]
	assert.False(t, hasIntKey)
}

func TestLogger_WithDoesNotLeakToParent(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info")

	_ = log.With("check", "omf")
	log.Info("parent")

	entry := decode(t, &buf)
	_, ok := entry["check"]
	assert.False(t, ok)
}

func TestLogger_Named(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info").Named("runner").Named("piwebapi")

	log.Info("named")

	entry := decode(t, &buf)
	assert.Equal(t, "runner.piwebapi", entry["logger"])
}

func TestLogger_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithFormat(&buf, "info", FormatConsole).Named("checks")

	log.Info("Create element", "name", "OSIsoftTestElement", "attempt", 2)

	line := strings.TrimSpace(buf.String())
	assert.Contains(t, line, "INFO")
	assert.Contains(t, line, "checks: Create element")
	assert.True(t, strings.HasSuffix(line, "attempt=2 name=OSIsoftTestElement"), line)
}

func TestLogger_Writer(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug")
	w := log.Writer(LevelDebug)

	_, err := fmt.Fprint(w, "first line\nsecond ")
	require.NoError(t, err)
	_, err = fmt.Fprint(w, "line\r\n\n")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "second line", second["msg"])
	assert.Equal(t, "DEBUG", second["level"])
}

func TestLogger_MarshalErrorDropsEntry(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info")

	log.Info("message", "channel", make(chan int))

	assert.Empty(t, buf.String())
}

func TestNop(t *testing.T) {
	log := Nop()
	assert.False(t, log.Enabled(LevelWarn))
	log.Error("discarded")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{"ERROR", LevelError},
		{"invalid", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "INFO", Level(999).String())
}
