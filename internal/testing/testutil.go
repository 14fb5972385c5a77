package testing

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neurondb/NeuronQuery/api/internal/config"
	"github.com/neurondb/NeuronQuery/api/internal/database"
	"github.com/neurondb/NeuronQuery/api/internal/logging"
)

/* SetupTestExecutor connects to TEST_DATABASE_URL, skipping the test when it is unset or unreachable */
func SetupTestExecutor(t *testing.T) *database.Executor {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database tests")
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("Failed to parse TEST_DATABASE_URL: %v", err)
	}
	poolConfig.MaxConns = 4

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pgPool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}
	if err := pgPool.Ping(ctx); err != nil {
		pgPool.Close()
		t.Skipf("Database not reachable: %v", err)
	}

	logger := logging.Discard()
	pool := database.NewPool(pgPool, logger)
	t.Cleanup(pool.Close)

	cfg := config.Defaults().Database
	return database.NewExecutor(pool, &cfg, logger)
}

/* TestConfig returns defaults suitable for in-process servers */
func TestConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Auth.JWTSecret = "test-secret-key-for-testing-only-32b"
	cfg.Logging.Level = "error"
	return cfg
}
