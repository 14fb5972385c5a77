package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/neurondb/NeuronQuery/api/internal/database"
	"github.com/neurondb/NeuronQuery/api/internal/logging"
	"github.com/neurondb/NeuronQuery/api/internal/utils"
)

// Token budgets per operation
const (
	SQLMaxTokens     = 500
	SummaryMaxTokens = 800
	HealthMaxTokens  = 10
)

// NoResultsMessage answers a query that returned zero rows
const NoResultsMessage = "I didn't find any results matching your question. You might want to try rephrasing your query or check if the data exists."

// Translator turns questions into candidate SQL and rows into prose.
// Everything it returns is untrusted text.
type Translator interface {
	GenerateSQL(ctx context.Context, question string, schema *database.SchemaSnapshot) (string, error)
	Summarize(ctx context.Context, question, sql string, rows database.Rows) (string, error)
	HealthCheck(ctx context.Context) error
}

// Completer is the transport a Service runs on
type Completer interface {
	Complete(ctx context.Context, operation string, messages []Message, maxTokens int) (string, error)
}

// Service implements Translator over a chat-completions client
type Service struct {
	client Completer
	logger *logging.Logger
}

// NewService creates a translator
func NewService(client Completer, logger *logging.Logger) *Service {
	return &Service{client: client, logger: logger}
}

// GenerateSQL returns the raw model answer; callers extract and gate the SQL
func (s *Service) GenerateSQL(ctx context.Context, question string, schema *database.SchemaSnapshot) (string, error) {
	messages := []Message{
		{Role: "system", Content: SQLSystemPrompt(schema)},
		{Role: "user", Content: SQLUserPrompt(question)},
	}

	response, err := s.client.Complete(ctx, "generate_sql", messages, SQLMaxTokens)
	if err != nil {
		return "", fmt.Errorf("failed to generate SQL: %w", err)
	}
	s.logger.Debug("Model response for SQL generation", map[string]interface{}{
		"response": logging.Truncate(response, 500),
	})
	return response, nil
}

// Summarize explains rows. Zero rows never reach the model, and a model
// failure degrades to a plain fallback rather than an error.
func (s *Service) Summarize(ctx context.Context, question, sql string, rows database.Rows) (string, error) {
	if len(rows) == 0 {
		return NoResultsMessage, nil
	}

	messages := []Message{
		{Role: "system", Content: summarySystemPrompt},
		{Role: "user", Content: SummaryUserPrompt(question, sql, rows)},
	}

	response, err := s.client.Complete(ctx, "summarize", messages, SummaryMaxTokens)
	if err != nil || strings.TrimSpace(response) == "" {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.logger.Warn("Falling back to plain result summary", map[string]interface{}{
			"rows": len(rows),
		})
		return FallbackSummary(rows), nil
	}
	return strings.TrimSpace(response), nil
}

// HealthCheck asks the model for a fixed word, without retries
func (s *Service) HealthCheck(ctx context.Context) error {
	messages := []Message{{Role: "user", Content: healthPrompt}}

	var (
		response string
		err      error
	)
	if c, ok := s.client.(*Client); ok {
		single := utils.DefaultRetryConfig()
		single.MaxAttempts = 1
		response, err = c.complete(ctx, single, "health", messages, HealthMaxTokens)
	} else {
		response, err = s.client.Complete(ctx, "health", messages, HealthMaxTokens)
	}
	if err != nil {
		return fmt.Errorf("LLM health check failed: %w", err)
	}
	if !strings.Contains(strings.ToLower(response), "healthy") {
		return fmt.Errorf("LLM health check got unexpected answer %q", logging.Truncate(response, 50))
	}
	return nil
}

// FallbackSummary is used when the model cannot explain the rows
func FallbackSummary(rows database.Rows) string {
	return fmt.Sprintf("Found %d results, but I had trouble explaining them. Here's a summary of the data: %s",
		len(rows), sampleJSON(sampleRows(rows)))
}

// Unavailable stands in for the translator when the LLM service is not configured
type Unavailable struct {
	Err error
}

func (u Unavailable) err() error {
	if u.Err != nil {
		return u.Err
	}
	return ErrNotConfigured
}

// GenerateSQL always fails
func (u Unavailable) GenerateSQL(ctx context.Context, question string, schema *database.SchemaSnapshot) (string, error) {
	return "", u.err()
}

// Summarize uses the plain fallback
func (u Unavailable) Summarize(ctx context.Context, question, sql string, rows database.Rows) (string, error) {
	if len(rows) == 0 {
		return NoResultsMessage, nil
	}
	return FallbackSummary(rows), nil
}

// HealthCheck always fails
func (u Unavailable) HealthCheck(ctx context.Context) error {
	return u.err()
}
