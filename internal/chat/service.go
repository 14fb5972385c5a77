package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/neurondb/NeuronQuery/api/internal/database"
	"github.com/neurondb/NeuronQuery/api/internal/llm"
	"github.com/neurondb/NeuronQuery/api/internal/logging"
	"github.com/neurondb/NeuronQuery/api/internal/metrics"
	"github.com/neurondb/NeuronQuery/api/internal/security"
	"github.com/neurondb/NeuronQuery/api/internal/sqlguard"
)

// SchemaSource supplies prompt context
type SchemaSource interface {
	SchemaSnapshot(ctx context.Context) (*database.SchemaSnapshot, error)
}

// QueryRunner executes admitted statements
type QueryRunner interface {
	Execute(ctx context.Context, stmt sqlguard.SanitizedStatement, params ...interface{}) (database.Rows, error)
}

// Deps are the collaborators of a Service
type Deps struct {
	Scanner        *security.InputScanner
	Schema         SchemaSource
	Translator     llm.Translator
	Gate           sqlguard.Sanitizer
	Runner         QueryRunner
	Auditor        *Auditor
	Events         *security.EventLog
	Stats          *metrics.Stats
	MaxInputLength int
	Logger         *logging.Logger
}

// Service runs a question through scan, translate, gate, execute and summarize
type Service struct {
	scanner        *security.InputScanner
	schema         SchemaSource
	translator     llm.Translator
	gate           sqlguard.Sanitizer
	runner         QueryRunner
	auditor        *Auditor
	events         *security.EventLog
	stats          *metrics.Stats
	maxInputLength int
	logger         *logging.Logger
}

// NewService creates a chat pipeline
func NewService(d Deps) *Service {
	if d.Scanner == nil {
		d.Scanner = security.NewInputScanner(d.Logger)
	}
	if d.MaxInputLength <= 0 {
		d.MaxInputLength = security.DefaultMaxInputLength
	}
	if d.Stats == nil {
		d.Stats = metrics.GlobalStats()
	}
	return &Service{
		scanner:        d.Scanner,
		schema:         d.Schema,
		translator:     d.Translator,
		gate:           d.Gate,
		runner:         d.Runner,
		auditor:        d.Auditor,
		events:         d.Events,
		stats:          d.Stats,
		maxInputLength: d.MaxInputLength,
		logger:         d.Logger,
	}
}

// Question is one chat turn
type Question struct {
	Message   string
	SessionID string
	UserID    string
	// Origin is the HTTP request that carried the question, used for security events
	Origin *http.Request
}

// Answer is a successful chat turn
type Answer struct {
	Response      string `json:"response"`
	Formatted     string `json:"-"`
	RowCount      int    `json:"row_count"`
	SQL           string `json:"-"`
	InteractionID string `json:"-"`
}

// Ask answers q or returns a *Error
func (s *Service) Ask(ctx context.Context, q Question) (answer *Answer, err error) {
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = string(KindInternal)
			var chatErr *Error
			if errors.As(err, &chatErr) {
				outcome = string(chatErr.Kind)
			}
		}
		s.stats.RecordQuestion(outcome, time.Since(start))
	}()

	message := strings.TrimSpace(q.Message)
	if message == "" {
		return nil, NewError(KindRejectedInput, nil, "Message is required")
	}

	validation := s.scanner.Validate(message, s.maxInputLength)
	if !validation.Valid {
		s.events.Log(q.Origin, security.EventInvalidInput, map[string]interface{}{
			"field":    "message",
			"warnings": validation.Warnings,
		})
		return nil, NewError(KindRejectedInput, nil, validation.Warnings...)
	}

	s.logger.Info("Processing query", map[string]interface{}{
		"session_id": q.SessionID,
		"message":    logging.Truncate(message, 200),
	})

	schema, err := s.schema.SchemaSnapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewError(KindInternal, ctx.Err())
		}
		s.logger.Warn("Continuing without schema context", map[string]interface{}{
			"error": err.Error(),
		})
		schema = nil
	}

	raw, err := s.translator.GenerateSQL(ctx, message, schema)
	if err != nil {
		s.logger.Error("SQL generation failed", err, map[string]interface{}{"session_id": q.SessionID})
		return nil, NewError(KindUntranslatable, err)
	}

	candidate, ok := sqlguard.ExtractCandidate(raw)
	if !ok {
		s.logger.Warn("Generated query doesn't start with SELECT", map[string]interface{}{
			"session_id":   q.SessionID,
			"model_output": logging.Truncate(raw, 1000),
		})
		s.events.Log(q.Origin, security.EventUntranslatable, map[string]interface{}{
			"model_output": logging.Truncate(raw, 100),
		})
		return nil, NewError(KindUntranslatable, nil)
	}

	stmt, err := s.gate.Sanitize(candidate)
	if err != nil {
		s.events.Log(q.Origin, security.EventSQLRejected, map[string]interface{}{
			"reason": sqlguard.ReasonLabel(err),
			"sql":    logging.Truncate(candidate, 100),
		})
		return nil, NewError(KindRejectedStatement, err)
	}

	s.logger.Info("Generated SQL", map[string]interface{}{
		"sql":        stmt.SQL(),
		"tables":     stmt.Tables(),
		"complexity": string(stmt.Complexity()),
	})

	rows, err := s.runner.Execute(ctx, stmt)
	if err != nil {
		if errors.Is(err, database.ErrPoolExhausted) {
			return nil, NewError(KindPoolExhausted, err)
		}
		return nil, NewError(KindExecutionFailed, err)
	}

	summary, err := s.translator.Summarize(ctx, message, stmt.SQL(), rows)
	if err != nil {
		return nil, NewError(KindInternal, err)
	}

	entry := s.auditor.Record(Interaction{
		SessionID:  q.SessionID,
		UserID:     q.UserID,
		Message:    message,
		SQL:        stmt.SQL(),
		RowCount:   len(rows),
		Tables:     stmt.Tables(),
		Complexity: string(stmt.Complexity()),
	})

	return &Answer{
		Response:      summary,
		Formatted:     FormatResponse(summary, rows),
		RowCount:      len(rows),
		SQL:           stmt.SQL(),
		InteractionID: entry.InteractionID,
	}, nil
}

// Validate exposes the input scanner on its own
func (s *Service) Validate(text string, maxLength int) security.ValidationResult {
	if maxLength <= 0 {
		maxLength = s.maxInputLength
	}
	return s.scanner.Validate(text, maxLength)
}
