package chat

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/neurondb/NeuronQuery/api/internal/database"
)

const (
	summaryThreshold  = 5
	sampleDisplayRows = 3
	sampleMaxFields   = 5
	sampleMaxValueLen = 100
	cleanTextMaxLen   = 2000
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// FormatResponse appends a result count and a few sample rows to the summary.
// Samples are shown only when the first row is narrow enough to read inline.
func FormatResponse(summary string, rows database.Rows) string {
	var b strings.Builder
	b.WriteString(summary)

	if len(rows) > summaryThreshold {
		fmt.Fprintf(&b, "\n\n**Summary**: Found %d total results.", len(rows))
	}

	if len(rows) == 0 || !displayable(rows[0]) {
		return b.String()
	}

	b.WriteString("\n\n**Sample data:**\n")
	shown := len(rows)
	if shown > sampleDisplayRows {
		shown = sampleDisplayRows
	}
	for i, row := range rows[:shown] {
		items := make([]string, len(row))
		for j, col := range row {
			items[j] = fmt.Sprintf("%s: %s", col.Name, renderValue(col.Value))
		}
		fmt.Fprintf(&b, "\n%d. %s", i+1, strings.Join(items, ", "))
	}
	if len(rows) > shown {
		fmt.Fprintf(&b, "\n... and %d more results", len(rows)-shown)
	}
	return b.String()
}

func displayable(row database.Row) bool {
	if len(row) > sampleMaxFields {
		return false
	}
	for _, col := range row {
		if utf8.RuneCountInString(renderValue(col.Value)) >= sampleMaxValueLen {
			return false
		}
	}
	return true
}

func renderValue(v interface{}) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprint(v)
}

// CleanText collapses whitespace, drops NUL bytes and caps the length
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	cleaned := whitespacePattern.ReplaceAllString(strings.TrimSpace(text), " ")
	cleaned = strings.ReplaceAll(cleaned, "\x00", "")

	if utf8.RuneCountInString(cleaned) > cleanTextMaxLen {
		runes := []rune(cleaned)
		cleaned = string(runes[:cleanTextMaxLen]) + "..."
	}
	return cleaned
}
