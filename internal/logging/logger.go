package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
	"unicode/utf8"
)

// Logger provides structured logging
type Logger struct {
	level  string
	format string
	mu     sync.Mutex
	output io.Writer
}

var levels = map[string]int{
	"debug": 0,
	"info":  1,
	"warn":  2,
	"error": 3,
}

// NewLogger creates a new logger writing to stdout, stderr or a file path
func NewLogger(level, format, output string) *Logger {
	var w io.Writer

	switch output {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		file, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Printf("Failed to open log file %s: %v, using stdout", output, err)
			w = os.Stdout
		} else {
			w = file
		}
	}

	return NewLoggerWithWriter(level, format, w)
}

// NewLoggerWithWriter creates a logger on an arbitrary writer
func NewLoggerWithWriter(level, format string, w io.Writer) *Logger {
	return &Logger{
		level:  level,
		format: format,
		output: w,
	}
}

// Discard returns a logger that drops every entry
func Discard() *Logger {
	return NewLoggerWithWriter("error", "json", io.Discard)
}

// LogEntry represents a log entry
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (l *Logger) shouldLog(level string) bool {
	currentLevel, ok := levels[l.level]
	if !ok {
		currentLevel = 1
	}

	logLevel, ok := levels[level]
	if !ok {
		return true
	}

	return logLevel >= currentLevel
}

func (l *Logger) log(level, message string, fields map[string]interface{}) {
	if l == nil || !l.shouldLog(level) {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Message:   message,
		Fields:    fields,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == "json" {
		data, err := json.Marshal(entry)
		if err != nil {
			fmt.Fprintf(l.output, "[%s] %s: %s (unencodable fields: %v)\n", entry.Timestamp, level, message, err)
			return
		}
		fmt.Fprintln(l.output, string(data))
		return
	}

	fieldStr := ""
	if len(fields) > 0 {
		fieldStr = fmt.Sprintf(" %+v", fields)
	}
	fmt.Fprintf(l.output, "[%s] %s: %s%s\n", entry.Timestamp, level, message, fieldStr)
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields map[string]interface{}) {
	l.log("debug", message, fields)
}

// Info logs an info message
func (l *Logger) Info(message string, fields map[string]interface{}) {
	l.log("info", message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields map[string]interface{}) {
	l.log("warn", message, fields)
}

// Error logs an error message
func (l *Logger) Error(message string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.log("error", message, fields)
}

// Truncate cuts s to at most n runes. Offending payloads are never logged in full.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
