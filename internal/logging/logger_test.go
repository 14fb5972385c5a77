package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		logFunc func(l *Logger)
		want    bool
	}{
		{"debug suppressed at info", "info", func(l *Logger) { l.Debug("d", nil) }, false},
		{"info emitted at info", "info", func(l *Logger) { l.Info("i", nil) }, true},
		{"warn emitted at info", "info", func(l *Logger) { l.Warn("w", nil) }, true},
		{"info suppressed at error", "error", func(l *Logger) { l.Info("i", nil) }, false},
		{"unknown level defaults to info", "bogus", func(l *Logger) { l.Debug("d", nil) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewLoggerWithWriter(tt.level, "json", &buf)
			tt.logFunc(l)
			assert.Equal(t, tt.want, buf.Len() > 0)
		})
	}
}

func TestLogger_JSONEntry(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter("debug", "json", &buf)

	l.Error("query failed", errors.New("boom"), map[string]interface{}{"rows": 3})

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry.Level)
	assert.Equal(t, "query failed", entry.Message)
	assert.Equal(t, "boom", entry.Fields["error"])
	assert.EqualValues(t, 3, entry.Fields["rows"])
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter("info", "text", &buf)
	l.Info("started", map[string]interface{}{"port": "5000"})

	out := buf.String()
	assert.True(t, strings.Contains(out, "info: started"))
	assert.True(t, strings.Contains(out, "port:5000"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
	assert.Equal(t, "", Truncate("abc", 0))
	assert.Equal(t, "héé...", Truncate("hééllo", 3))
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Info("nothing", nil)
}
