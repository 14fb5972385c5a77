/*-------------------------------------------------------------------------
 *
 * rows.go
 *    Ordered result rows
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    internal/database/rows.go
 *
 *-------------------------------------------------------------------------
 */

package database

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

/* Column is one named value within a row */
type Column struct {
	Name  string
	Value interface{}
}

/* Row keeps the column order of the result set */
type Row []Column

/* Rows is an ordered result set; empty means no results, not failure */
type Rows []Row

/* Get returns the value of the first column called name */
func (r Row) Get(name string) (interface{}, bool) {
	for _, c := range r {
		if c.Name == name {
			return c.Value, true
		}
	}
	return nil, false
}

/* Names returns the column names in order */
func (r Row) Names() []string {
	names := make([]string, len(r))
	for i, c := range r {
		names[i] = c.Name
	}
	return names
}

/* Map returns the row as an unordered map */
func (r Row) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(r))
	for _, c := range r {
		m[c.Name] = c.Value
	}
	return m
}

/* MarshalJSON encodes the row as an object whose keys keep column order */
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c.Value)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

/* collectRows reads every row, converting driver values into JSON-friendly ones */
func collectRows(rows pgx.Rows) (Rows, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	result := Rows{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(Row, len(fields))
		for i, fd := range fields {
			row[i] = Column{Name: fd.Name, Value: normalizeValue(values[i])}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

/* normalizeValue maps pgx types that do not encode naturally */
func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case pgtype.Numeric:
		if !val.Valid || val.NaN {
			return nil
		}
		if val.InfinityModifier != pgtype.Finite {
			return nil
		}
		if val.Exp >= 0 && val.Int != nil {
			n := new(big.Int).Mul(val.Int, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(val.Exp)), nil))
			if n.IsInt64() {
				return n.Int64()
			}
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(val).String()
	default:
		return v
	}
}
