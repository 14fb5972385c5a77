package database

import (
	"context"
	"encoding/json"
	"math/big"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurondb/NeuronQuery/api/internal/config"
	"github.com/neurondb/NeuronQuery/api/internal/logging"
	"github.com/neurondb/NeuronQuery/api/internal/sqlguard"
)

func TestRow_MarshalJSONKeepsOrder(t *testing.T) {
	row := Row{
		{Name: "zeta", Value: 1},
		{Name: "alpha", Value: "a"},
		{Name: "mid", Value: nil},
	}
	data, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":1,"alpha":"a","mid":null}`, string(data))

	data, err = json.Marshal(Rows{row, {}})
	require.NoError(t, err)
	assert.Equal(t, `[{"zeta":1,"alpha":"a","mid":null},{}]`, string(data))
}

func TestRow_Accessors(t *testing.T) {
	row := Row{{Name: "a", Value: 1}, {Name: "b", Value: 2}}

	v, ok := row.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	_, ok = row.Get("c")
	assert.False(t, ok)

	assert.Equal(t, []string{"a", "b"}, row.Names())
	assert.Equal(t, map[string]interface{}{"a": 1, "b": 2}, row.Map())
}

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want interface{}
	}{
		{"integer numeric", pgtype.Numeric{Int: big.NewInt(42), Exp: 0, Valid: true}, int64(42)},
		{"scaled integer numeric", pgtype.Numeric{Int: big.NewInt(12), Exp: 2, Valid: true}, int64(1200)},
		{"fractional numeric", pgtype.Numeric{Int: big.NewInt(5), Exp: -1, Valid: true}, 0.5},
		{"null numeric", pgtype.Numeric{}, nil},
		{"nan numeric", pgtype.Numeric{NaN: true, Valid: true}, nil},
		{"uuid", [16]byte{0x12, 0x34}, "12340000-0000-0000-0000-000000000000"},
		{"passthrough", "text", "text"},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeValue(tt.in))
		})
	}
}

func TestStatementTimeoutSQL(t *testing.T) {
	assert.Equal(t, "SET statement_timeout = '30000ms'", statementTimeoutSQL(30*time.Second))
	assert.Equal(t, "SET statement_timeout = '1500ms'", statementTimeoutSQL(1500*time.Millisecond))
	assert.Equal(t, "SET statement_timeout = '0ms'", statementTimeoutSQL(-time.Second))
}

func TestPoolConfig(t *testing.T) {
	cfg := config.Defaults().Database
	cfg.Host = "db.internal"
	cfg.MinConns = 2
	cfg.MaxConns = 7

	pc, err := PoolConfig(&cfg)
	require.NoError(t, err)
	assert.Equal(t, int32(2), pc.MinConns)
	assert.Equal(t, int32(7), pc.MaxConns)
	assert.Equal(t, cfg.HealthCheckPeriod, pc.HealthCheckPeriod)
	assert.Equal(t, "db.internal", pc.ConnConfig.Host)
	assert.Equal(t, "neuronquery", pc.ConnConfig.RuntimeParams["application_name"])
}

func TestSchemaSnapshot_Add(t *testing.T) {
	s := NewSchemaSnapshot()
	s.Add("orders", "BASE TABLE", "public", []ColumnInfo{{Name: "order_id"}, {Name: "total_amount"}})
	s.Add("customers", "BASE TABLE", "public", []ColumnInfo{{Name: "customer_id"}})
	s.Add("order_summary", "VIEW", "public", []ColumnInfo{{Name: "n"}})
	s.Add("empty", "BASE TABLE", "public", nil)

	assert.Equal(t, 3, s.TotalTables)
	assert.Equal(t, 4, s.TotalColumns)
	assert.Contains(t, s.Views, "order_summary")
	assert.NotContains(t, s.Tables, "order_summary")
	assert.Equal(t, []string{"customers", "empty", "orders", "order_summary"}, s.Relations())
	assert.NotNil(t, s.Tables["empty"].Columns)

	info, ok := s.Lookup("order_summary")
	assert.True(t, ok)
	assert.Equal(t, "VIEW", info.Type)
	_, ok = s.Lookup("missing")
	assert.False(t, ok)
}

func TestAnalyticsQueriesPassGate(t *testing.T) {
	gate := sqlguard.NewGate(100, nil)
	require.NoError(t, PreflightAnalytics(gate))

	for _, q := range AnalyticsQueries {
		stmt, err := gate.Sanitize(q.SQL)
		require.NoError(t, err, q.Key)
		assert.True(t, sqlguard.HasLimit(stmt.SQL()), q.Key)
	}
}

func TestAnalytics_Set(t *testing.T) {
	a := &Analytics{}
	a.set("metrics", nil)
	assert.NotNil(t, a.Metrics)

	a.set("metrics", Rows{{{Name: "total_orders", Value: int64(3)}}})
	v, _ := a.Metrics.Get("total_orders")
	assert.Equal(t, int64(3), v)

	a.set("orderStatus", Rows{{}})
	assert.Len(t, a.OrderStatus, 1)
}

/* Database-backed tests */

func testExecutor(t *testing.T) *Executor {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database tests")
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	poolConfig.MaxConns = 2

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	require.NoError(t, err)
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("database not reachable: %v", err)
	}

	logger := logging.Discard()
	p := &Pool{pool: pool, logger: logger}
	t.Cleanup(p.Close)

	cfg := config.Defaults().Database
	cfg.AcquireTimeout = 500 * time.Millisecond
	cfg.StatementTimeout = 2 * time.Second
	return NewExecutor(p, &cfg, logger)
}

func TestExecutor_Execute(t *testing.T) {
	exec := testExecutor(t)
	gate := sqlguard.NewGate(100, nil)
	ctx := context.Background()

	stmt, err := gate.Sanitize("SELECT 2 AS b, 1 AS a, 'x' AS c")
	require.NoError(t, err)

	rows, err := exec.Execute(ctx, stmt)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"b", "a", "c"}, rows[0].Names())

	stmt, err = gate.Sanitize("SELECT n FROM generate_series(1, 500) AS n")
	require.NoError(t, err)
	rows, err = exec.Execute(ctx, stmt)
	require.NoError(t, err)
	assert.Len(t, rows, 100)

	stmt, err = gate.Sanitize("SELECT 1 WHERE false")
	require.NoError(t, err)
	rows, err = exec.Execute(ctx, stmt)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestExecutor_Parameters(t *testing.T) {
	exec := testExecutor(t)
	stmt, err := sqlguard.NewGate(100, nil).Sanitize("SELECT $1::text AS echo")
	require.NoError(t, err)

	rows, err := exec.Execute(context.Background(), stmt, "'; DROP TABLE x; --")
	require.NoError(t, err)
	v, _ := rows[0].Get("echo")
	assert.Equal(t, "'; DROP TABLE x; --", v)
}

func TestExecutor_Failures(t *testing.T) {
	exec := testExecutor(t)
	gate := sqlguard.NewGate(100, nil)

	_, err := exec.Execute(context.Background(), sqlguard.SanitizedStatement{})
	assert.ErrorIs(t, err, ErrExecutionFailed)

	stmt, err := gate.Sanitize("SELECT * FROM table_that_does_not_exist")
	require.NoError(t, err)
	_, err = exec.Execute(context.Background(), stmt)
	assert.ErrorIs(t, err, ErrExecutionFailed)

	stmt, err = gate.Sanitize("SELECT pg_sleep(5)")
	require.NoError(t, err)
	_, err = exec.Execute(context.Background(), stmt)
	assert.ErrorIs(t, err, ErrExecutionFailed, "statement timeout must abort the query")

	/* the connection came back to the pool after each failure */
	assert.Zero(t, exec.Pool().Stats().AcquiredConns)
}

func TestExecutor_ReadOnly(t *testing.T) {
	exec := testExecutor(t)
	_, err := exec.query(context.Background(), "CREATE TEMP TABLE t_readonly (id int)")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "read-only"))
}

func TestExecutor_PoolExhausted(t *testing.T) {
	exec := testExecutor(t)
	ctx := context.Background()

	held := make([]*pgxpool.Conn, 0, 2)
	for i := 0; i < 2; i++ {
		c, err := exec.pool.pool.Acquire(ctx)
		require.NoError(t, err)
		held = append(held, c)
	}
	defer func() {
		for _, c := range held {
			c.Release()
		}
	}()

	stmt, err := sqlguard.NewGate(100, nil).Sanitize("SELECT 1")
	require.NoError(t, err)
	_, err = exec.Execute(ctx, stmt)
	assert.ErrorIs(t, err, ErrPoolExhausted)
}

func TestExecutor_SchemaAndSample(t *testing.T) {
	exec := testExecutor(t)
	ctx := context.Background()

	snapshot, err := exec.SchemaSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(snapshot.Tables), snapshot.TotalTables)

	require.NoError(t, exec.Ping(ctx))

	_, err = exec.SampleData(ctx, `orders"; DROP TABLE orders; --`, 5)
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	if names := snapshot.Relations(); len(names) > 0 {
		rows, err := exec.SampleData(ctx, names[0], 2)
		if err == nil {
			assert.LessOrEqual(t, len(rows), 2)
		}
	}
}
