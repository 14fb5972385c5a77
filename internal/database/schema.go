/*-------------------------------------------------------------------------
 *
 * schema.go
 *    Catalog introspection for prompt context and previews
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    internal/database/schema.go
 *
 *-------------------------------------------------------------------------
 */

package database

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/neurondb/NeuronQuery/api/internal/utils"
)

const tablesQuery = `
SELECT
    table_name::text AS table_name,
    table_type::text AS table_type,
    table_schema::text AS table_schema
FROM information_schema.tables
WHERE table_schema NOT IN ('information_schema', 'pg_catalog')
ORDER BY table_name`

const columnsQuery = `
SELECT
    column_name::text AS column_name,
    data_type::text AS data_type,
    is_nullable::text AS is_nullable,
    column_default::text AS column_default,
    character_maximum_length::int AS character_maximum_length
FROM information_schema.columns
WHERE table_name = $1 AND table_schema = $2
ORDER BY ordinal_position`

/* DefaultSampleRows and MaxSampleRows bound data previews */
const (
	DefaultSampleRows = 5
	MaxSampleRows     = 100
)

/* ColumnInfo describes one column */
type ColumnInfo struct {
	Name                   string  `json:"column_name" db:"column_name"`
	DataType               string  `json:"data_type" db:"data_type"`
	IsNullable             string  `json:"is_nullable" db:"is_nullable"`
	Default                *string `json:"column_default" db:"column_default"`
	CharacterMaximumLength *int32  `json:"character_maximum_length" db:"character_maximum_length"`
}

/* TableInfo describes a table or view */
type TableInfo struct {
	Type        string       `json:"type"`
	Schema      string       `json:"schema"`
	Columns     []ColumnInfo `json:"columns"`
	ColumnCount int          `json:"column_count"`
}

/* SchemaSnapshot is rebuilt on every request; it is never cached */
type SchemaSnapshot struct {
	Tables       map[string]TableInfo `json:"tables"`
	Views        map[string]TableInfo `json:"views"`
	TotalTables  int                  `json:"total_tables"`
	TotalColumns int                  `json:"total_columns"`
}

type tableRef struct {
	Name   string `db:"table_name"`
	Type   string `db:"table_type"`
	Schema string `db:"table_schema"`
}

/* NewSchemaSnapshot returns an empty snapshot */
func NewSchemaSnapshot() *SchemaSnapshot {
	return &SchemaSnapshot{
		Tables: map[string]TableInfo{},
		Views:  map[string]TableInfo{},
	}
}

/* Add files a relation under tables when it is a BASE TABLE, else under views */
func (s *SchemaSnapshot) Add(name, relType, schema string, columns []ColumnInfo) {
	if columns == nil {
		columns = []ColumnInfo{}
	}
	info := TableInfo{
		Type:        relType,
		Schema:      schema,
		Columns:     columns,
		ColumnCount: len(columns),
	}
	if relType == "BASE TABLE" {
		s.Tables[name] = info
	} else {
		s.Views[name] = info
	}
	s.TotalColumns += info.ColumnCount
	s.TotalTables = len(s.Tables)
}

/* Relations returns table then view names, each sorted */
func (s *SchemaSnapshot) Relations() []string {
	names := sortedKeys(s.Tables)
	return append(names, sortedKeys(s.Views)...)
}

/* Lookup finds a relation among tables and views */
func (s *SchemaSnapshot) Lookup(name string) (TableInfo, bool) {
	if info, ok := s.Tables[name]; ok {
		return info, true
	}
	info, ok := s.Views[name]
	return info, ok
}

func sortedKeys(m map[string]TableInfo) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

/*
 * SchemaSnapshot reads relation names, then the columns of each relation,
 * on one connection in one read-only transaction.
 */
func (e *Executor) SchemaSnapshot(ctx context.Context) (*SchemaSnapshot, error) {
	snapshot := NewSchemaSnapshot()

	err := e.withReadOnlyTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, tablesQuery)
		if err != nil {
			return fmt.Errorf("failed to list tables: %w", err)
		}
		refs, err := pgx.CollectRows(rows, pgx.RowToStructByName[tableRef])
		if err != nil {
			return fmt.Errorf("failed to read tables: %w", err)
		}

		for _, ref := range refs {
			rows, err := tx.Query(ctx, columnsQuery, ref.Name, ref.Schema)
			if err != nil {
				return fmt.Errorf("failed to list columns of %s.%s: %w", ref.Schema, ref.Name, err)
			}
			columns, err := pgx.CollectRows(rows, pgx.RowToStructByName[ColumnInfo])
			if err != nil {
				return fmt.Errorf("failed to read columns of %s.%s: %w", ref.Schema, ref.Name, err)
			}
			snapshot.Add(ref.Name, ref.Type, ref.Schema, columns)
		}
		return nil
	})
	if err != nil {
		e.logger.Error("Failed to retrieve schema information", err, nil)
		return nil, fmt.Errorf("%w: %w", ErrExecutionFailed, err)
	}

	e.logger.Info("Retrieved schema info", map[string]interface{}{
		"tables":  snapshot.TotalTables,
		"views":   len(snapshot.Views),
		"columns": snapshot.TotalColumns,
	})
	return snapshot, nil
}

/* SampleData previews up to limit rows of a table; the name is validated and quoted, the limit bound */
func (e *Executor) SampleData(ctx context.Context, table string, limit int) (Rows, error) {
	if err := utils.ValidateIdentifier("table", table); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIdentifier, err)
	}
	if limit <= 0 {
		limit = DefaultSampleRows
	}
	if limit > MaxSampleRows {
		limit = MaxSampleRows
	}

	sql := "SELECT * FROM " + pgx.Identifier{table}.Sanitize() + " LIMIT $1"
	rows, err := e.query(ctx, sql, limit)
	if err != nil {
		e.logger.Error("Failed to get sample data", err, map[string]interface{}{"table": table})
		return nil, fmt.Errorf("%w: %w", ErrExecutionFailed, err)
	}
	return rows, nil
}
