package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/neurondb/NeuronQuery/api/internal/database"
	"github.com/neurondb/NeuronQuery/api/internal/logging"
	"github.com/neurondb/NeuronQuery/api/internal/sqlguard"
)

// DataSource supplies the dashboard and the catalog
type DataSource interface {
	Analytics(ctx context.Context, gate sqlguard.Sanitizer) (*database.Analytics, error)
	SchemaSnapshot(ctx context.Context) (*database.SchemaSnapshot, error)
	SampleData(ctx context.Context, table string, limit int) (database.Rows, error)
}

// DataHandlers serves analytics and schema browsing
type DataHandlers struct {
	data   DataSource
	gate   sqlguard.Sanitizer
	logger *logging.Logger
}

// NewDataHandlers creates data handlers
func NewDataHandlers(data DataSource, gate sqlguard.Sanitizer, logger *logging.Logger) *DataHandlers {
	return &DataHandlers{data: data, gate: gate, logger: logger}
}

// Analytics handles GET /api/analytics
func (h *DataHandlers) Analytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := h.data.Analytics(r.Context(), h.gate)
	if err != nil {
		h.logger.Error("Error retrieving analytics", err, nil)
		WriteError(w, http.StatusInternalServerError, "Failed to retrieve analytics data.", nil)
		return
	}

	WriteSuccess(w, map[string]interface{}{
		"analytics": analytics,
		"status":    "success",
	}, http.StatusOK)
}

// Schema handles GET /api/schema[?sample=<table>&limit=<n>]
func (h *DataHandlers) Schema(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := database.DefaultSampleRows
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > database.MaxSampleRows {
			WriteError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(database.MaxSampleRows), nil)
			return
		}
		limit = n
	}

	snapshot, err := h.data.SchemaSnapshot(r.Context())
	if err != nil {
		h.logger.Error("Error retrieving schema", err, nil)
		WriteError(w, http.StatusInternalServerError, "Failed to retrieve database schema.", nil)
		return
	}

	response := map[string]interface{}{
		"schema": snapshot,
		"status": "success",
	}

	if table := query.Get("sample"); table != "" {
		if _, ok := snapshot.Lookup(table); !ok {
			WriteError(w, http.StatusNotFound, "Unknown table", nil)
			return
		}
		rows, err := h.data.SampleData(r.Context(), table, limit)
		if err != nil {
			if errors.Is(err, database.ErrInvalidIdentifier) {
				WriteError(w, http.StatusBadRequest, "Invalid table name", nil)
				return
			}
			h.logger.Error("Error retrieving sample data", err, map[string]interface{}{"table": table})
			WriteError(w, http.StatusInternalServerError, "Failed to retrieve sample data.", nil)
			return
		}
		response["sample"] = map[string]interface{}{
			"table": table,
			"rows":  rows,
		}
	}

	WriteSuccess(w, response, http.StatusOK)
}
