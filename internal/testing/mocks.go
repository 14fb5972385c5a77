package testing

import (
	"context"
	"fmt"
	"sync"

	"github.com/neurondb/NeuronQuery/api/internal/database"
	"github.com/neurondb/NeuronQuery/api/internal/sqlguard"
)

// MockTranslator is a scripted llm.Translator
type MockTranslator struct {
	mu sync.Mutex

	SQLResponse  string
	SQLError     error
	Summary      string
	SummaryError error
	HealthError  error

	Questions  []string
	Summarized []database.Rows
	LastSchema *database.SchemaSnapshot
}

// NewMockTranslator returns a translator answering every question with sql
func NewMockTranslator(sql string) *MockTranslator {
	return &MockTranslator{
		SQLResponse: sql,
		Summary:     "Here is what I found.",
	}
}

// GenerateSQL returns the scripted model output
func (m *MockTranslator) GenerateSQL(ctx context.Context, question string, schema *database.SchemaSnapshot) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Questions = append(m.Questions, question)
	m.LastSchema = schema
	if m.SQLError != nil {
		return "", m.SQLError
	}
	return m.SQLResponse, nil
}

// Summarize returns the scripted summary
func (m *MockTranslator) Summarize(ctx context.Context, question, sql string, rows database.Rows) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Summarized = append(m.Summarized, rows)
	if m.SummaryError != nil {
		return "", m.SummaryError
	}
	return m.Summary, nil
}

// HealthCheck returns HealthError
func (m *MockTranslator) HealthCheck(ctx context.Context) error {
	return m.HealthError
}

// MockDatabase stands in for the execution guard and the catalog
type MockDatabase struct {
	mu sync.Mutex

	Rows        database.Rows
	ExecError   error
	Schema      *database.SchemaSnapshot
	SchemaError error
	PingError   error

	AnalyticsResult *database.Analytics
	AnalyticsError  error
	Samples         map[string]database.Rows

	Executed []sqlguard.SanitizedStatement
}

// NewMockDatabase returns a database answering every statement with rows
func NewMockDatabase(rows database.Rows) *MockDatabase {
	schema := database.NewSchemaSnapshot()
	schema.Add("orders", "BASE TABLE", "public", []database.ColumnInfo{
		{Name: "order_id", DataType: "integer", IsNullable: "NO"},
		{Name: "total_amount", DataType: "numeric", IsNullable: "YES"},
	})
	return &MockDatabase{Rows: rows, Schema: schema}
}

// Execute records the statement and returns the scripted rows
func (m *MockDatabase) Execute(ctx context.Context, stmt sqlguard.SanitizedStatement, params ...interface{}) (database.Rows, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Executed = append(m.Executed, stmt)
	if m.ExecError != nil {
		return nil, m.ExecError
	}
	if m.Rows == nil {
		return database.Rows{}, nil
	}
	return m.Rows, nil
}

// SchemaSnapshot returns the scripted snapshot
func (m *MockDatabase) SchemaSnapshot(ctx context.Context) (*database.SchemaSnapshot, error) {
	if m.SchemaError != nil {
		return nil, m.SchemaError
	}
	return m.Schema, nil
}

// Ping returns PingError
func (m *MockDatabase) Ping(ctx context.Context) error {
	return m.PingError
}

// ExecutedSQL lists the text of every executed statement
func (m *MockDatabase) ExecutedSQL() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Executed))
	for i, s := range m.Executed {
		out[i] = s.SQL()
	}
	return out
}

// Analytics runs every fixed query through gate, then returns the scripted payload
func (m *MockDatabase) Analytics(ctx context.Context, gate sqlguard.Sanitizer) (*database.Analytics, error) {
	for _, q := range database.AnalyticsQueries {
		if _, err := gate.Sanitize(q.SQL); err != nil {
			return nil, fmt.Errorf("analytics query %s rejected: %w", q.Key, err)
		}
	}
	if m.AnalyticsError != nil {
		return nil, m.AnalyticsError
	}
	if m.AnalyticsResult == nil {
		return &database.Analytics{}, nil
	}
	return m.AnalyticsResult, nil
}

// SampleData returns the scripted rows for table, at most limit of them
func (m *MockDatabase) SampleData(ctx context.Context, table string, limit int) (database.Rows, error) {
	rows, ok := m.Samples[table]
	if !ok {
		return nil, fmt.Errorf("%w: unknown table %s", database.ErrExecutionFailed, table)
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}
