/*-------------------------------------------------------------------------
 *
 * pool.go
 *    PostgreSQL connection pool
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    internal/database/pool.go
 *
 *-------------------------------------------------------------------------
 */

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neurondb/NeuronQuery/api/internal/config"
	"github.com/neurondb/NeuronQuery/api/internal/logging"
	"github.com/neurondb/NeuronQuery/api/internal/metrics"
	"github.com/neurondb/NeuronQuery/api/internal/utils"
)

/* pingTimeout bounds the reachability check after each connect attempt */
const pingTimeout = 5 * time.Second

/* PoolStats is a snapshot of pool occupancy */
type PoolStats struct {
	AcquiredConns     int32         `json:"acquired_conns"`
	IdleConns         int32         `json:"idle_conns"`
	TotalConns        int32         `json:"total_conns"`
	MaxConns          int32         `json:"max_conns"`
	AcquireCount      int64         `json:"acquire_count"`
	EmptyAcquireCount int64         `json:"empty_acquire_count"`
	AcquireDuration   time.Duration `json:"acquire_duration"`
}

/* Pool owns the bounded set of database connections */
type Pool struct {
	pool   *pgxpool.Pool
	logger *logging.Logger
}

/* PoolConfig converts database settings into a pgxpool configuration */
func PoolConfig(cfg *config.DatabaseConfig) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string for database '%s' on host '%s:%s' as user '%s': %w",
			cfg.Name, cfg.Host, cfg.Port, cfg.User, err)
	}

	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "neuronquery"

	return poolConfig, nil
}

/*
 * Connect creates the pool and verifies it with a ping, retrying with
 * exponential backoff up to cfg.ConnectRetries attempts.
 */
func Connect(ctx context.Context, cfg *config.DatabaseConfig, logger *logging.Logger) (*Pool, error) {
	poolConfig, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	retry := utils.DefaultRetryConfig()
	retry.MaxAttempts = cfg.ConnectRetries

	var pool *pgxpool.Pool
	err = utils.Retry(ctx, logger, retry, "database connection", func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return fmt.Errorf("failed to create connection pool: %w", err)
		}

		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := p.Ping(pingCtx); err != nil {
			p.Close()
			return fmt.Errorf("connection ping failed: database '%s' on host '%s:%s' as user '%s': %w",
				cfg.Name, cfg.Host, cfg.Port, cfg.User, err)
		}

		pool = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Database connection pool ready", map[string]interface{}{
		"host":      cfg.Host,
		"port":      cfg.Port,
		"database":  cfg.Name,
		"min_conns": cfg.MinConns,
		"max_conns": cfg.MaxConns,
	})

	return &Pool{pool: pool, logger: logger}, nil
}

/* NewPool wraps an already connected pgx pool */
func NewPool(pool *pgxpool.Pool, logger *logging.Logger) *Pool {
	return &Pool{pool: pool, logger: logger}
}

/* Stats returns current pool occupancy and publishes it as gauges */
func (p *Pool) Stats() PoolStats {
	s := p.pool.Stat()
	stats := PoolStats{
		AcquiredConns:     s.AcquiredConns(),
		IdleConns:         s.IdleConns(),
		TotalConns:        s.TotalConns(),
		MaxConns:          s.MaxConns(),
		AcquireCount:      s.AcquireCount(),
		EmptyAcquireCount: s.EmptyAcquireCount(),
		AcquireDuration:   s.AcquireDuration(),
	}
	metrics.SetPoolConnections(stats.AcquiredConns, stats.IdleConns, stats.TotalConns)
	return stats
}

/* Close releases every connection */
func (p *Pool) Close() {
	p.pool.Close()
	p.logger.Info("Database connection pool closed", nil)
}
