/*-------------------------------------------------------------------------
 *
 * executor.go
 *    Execution guard for admitted statements
 *
 * Every statement runs on a connection acquired with a bounded wait,
 * under a per-session statement timeout, inside a read-only transaction.
 * The connection is released on every exit path.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    internal/database/executor.go
 *
 *-------------------------------------------------------------------------
 */

package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neurondb/NeuronQuery/api/internal/config"
	"github.com/neurondb/NeuronQuery/api/internal/logging"
	"github.com/neurondb/NeuronQuery/api/internal/metrics"
	"github.com/neurondb/NeuronQuery/api/internal/sqlguard"
)

var (
	ErrExecutionFailed   = errors.New("query execution failed")
	ErrPoolExhausted     = errors.New("connection pool exhausted")
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

/* Executor runs admitted statements against the pool */
type Executor struct {
	pool             *Pool
	statementTimeout time.Duration
	acquireTimeout   time.Duration
	logger           *logging.Logger
}

/* NewExecutor creates an execution guard over pool */
func NewExecutor(pool *Pool, cfg *config.DatabaseConfig, logger *logging.Logger) *Executor {
	return &Executor{
		pool:             pool,
		statementTimeout: cfg.StatementTimeout,
		acquireTimeout:   cfg.AcquireTimeout,
		logger:           logger,
	}
}

/* Pool returns the underlying pool */
func (e *Executor) Pool() *Pool {
	return e.pool
}

/*
 * Execute runs an admitted statement with optional bound parameters.
 * An empty result is returned as an empty Rows, never as an error.
 * Failures wrap ErrExecutionFailed, or are ErrPoolExhausted when no
 * connection became available in time.
 */
func (e *Executor) Execute(ctx context.Context, stmt sqlguard.SanitizedStatement, params ...interface{}) (Rows, error) {
	if stmt.IsZero() {
		return nil, fmt.Errorf("%w: no admitted statement", ErrExecutionFailed)
	}

	start := time.Now()
	result, err := e.query(ctx, stmt.SQL(), params...)
	duration := time.Since(start)
	complexity := string(stmt.Complexity())

	e.pool.Stats()

	if err != nil {
		if errors.Is(err, ErrPoolExhausted) {
			metrics.RecordQuery(complexity, "pool_exhausted", duration.Seconds(), 0)
			return nil, err
		}
		metrics.RecordQuery(complexity, "failure", duration.Seconds(), 0)
		e.logger.Error("Query execution failed", err, map[string]interface{}{
			"sql":         logging.Truncate(stmt.SQL(), 500),
			"tables":      stmt.Tables(),
			"duration_ms": duration.Milliseconds(),
		})
		return nil, fmt.Errorf("%w: %w", ErrExecutionFailed, err)
	}

	metrics.RecordQuery(complexity, "success", duration.Seconds(), len(result))
	e.logger.Info("Query executed", map[string]interface{}{
		"rows":        len(result),
		"complexity":  complexity,
		"tables":      stmt.Tables(),
		"duration_ms": duration.Milliseconds(),
	})
	return result, nil
}

/* Ping runs the health probe query */
func (e *Executor) Ping(ctx context.Context) error {
	rows, err := e.query(ctx, "SELECT 1 as health_check")
	if err != nil {
		return err
	}
	if len(rows) != 1 {
		return fmt.Errorf("health check returned %d rows", len(rows))
	}
	return nil
}

/* query runs trusted, internally built SQL; it bypasses the gate and its row cap */
func (e *Executor) query(ctx context.Context, sql string, params ...interface{}) (Rows, error) {
	var result Rows
	err := e.withReadOnlyTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql, params...)
		if err != nil {
			return err
		}
		result, err = collectRows(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Executor) withReadOnlyTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	conn, err := e.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, statementTimeoutSQL(e.statementTimeout)); err != nil {
		return fmt.Errorf("failed to set statement timeout: %w", err)
	}

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (e *Executor) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, e.acquireTimeout)
	defer cancel()

	conn, err := e.pool.pool.Acquire(acquireCtx)
	if err == nil {
		return conn, nil
	}

	if ctx.Err() == nil && errors.Is(acquireCtx.Err(), context.DeadlineExceeded) {
		stat := e.pool.pool.Stat()
		if stat.AcquiredConns() >= stat.MaxConns() {
			e.logger.Warn("Connection pool exhausted", map[string]interface{}{
				"acquired_conns":  stat.AcquiredConns(),
				"max_conns":       stat.MaxConns(),
				"acquire_timeout": e.acquireTimeout.String(),
			})
			return nil, ErrPoolExhausted
		}
	}
	return nil, fmt.Errorf("failed to acquire connection: %w", err)
}

/* statementTimeoutSQL renders the session timeout command from a trusted duration */
func statementTimeoutSQL(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("SET statement_timeout = '%dms'", d.Milliseconds())
}
