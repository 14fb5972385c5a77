package initialization

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/neurondb/NeuronQuery/api/internal/logging"
	"github.com/neurondb/NeuronQuery/api/internal/metrics"
)

// Pinger probes the database
type Pinger interface {
	Ping(ctx context.Context) error
}

// Prober probes the LLM service
type Prober interface {
	HealthCheck(ctx context.Context) error
}

// Health check statuses
const (
	StatusPass = "pass"
	StatusWarn = "warn"
	StatusFail = "fail"
)

// Per-check time budgets
const (
	databaseCheckTimeout = 5 * time.Second
	llmCheckTimeout      = 15 * time.Second
	systemCheckTimeout   = 2 * time.Second
)

// HealthChecker reports database, LLM and host health
type HealthChecker struct {
	db      Pinger
	llm     Prober
	stats   *metrics.Stats
	system  func(ctx context.Context) (*metrics.SystemMetrics, error)
	logger  *logging.Logger
	version string
}

// NewHealthChecker creates a new health checker instance; llm may be nil when unconfigured
func NewHealthChecker(db Pinger, llm Prober, stats *metrics.Stats, logger *logging.Logger) *HealthChecker {
	return &HealthChecker{
		db:     db,
		llm:    llm,
		stats:  stats,
		system: metrics.CollectSystem,
		logger: logger,
	}
}

// WithVersion sets the version reported by the health endpoint
func (hc *HealthChecker) WithVersion(v string) *HealthChecker {
	hc.version = v
	return hc
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string                 `json:"status"` // "healthy", "degraded"
	Database  string                 `json:"database"`
	OpenAI    string                 `json:"openai"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
	Pipeline  *metrics.StatsSnapshot `json:"pipeline,omitempty"`
	Version   string                 `json:"version,omitempty"`
}

// CheckResult represents the result of an individual health check
type CheckResult struct {
	Status      string      `json:"status"` // "pass", "warn", "fail"
	Message     string      `json:"message"`
	DurationMs  int64       `json:"duration_ms"`
	LastChecked time.Time   `json:"last_checked"`
	Details     interface{} `json:"details,omitempty"`
}

// CheckAll runs the checks concurrently. It fails only when ctx ends first.
func (hc *HealthChecker) CheckAll(ctx context.Context) (*HealthStatus, error) {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]CheckResult, 3)
	)

	run := func(name string, fn func(context.Context) CheckResult) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := fn(ctx)
			mu.Lock()
			checks[name] = result
			mu.Unlock()
		}()
	}

	run("database", hc.checkDatabase)
	run("llm", hc.checkLLM)
	run("system", hc.checkSystem)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("health check aborted: %w", err)
	}

	dbHealthy := checks["database"].Status == StatusPass
	llmHealthy := checks["llm"].Status == StatusPass

	status := &HealthStatus{
		Status:    "healthy",
		Database:  healthWord(dbHealthy),
		OpenAI:    healthWord(llmHealthy),
		Timestamp: time.Now().UTC(),
		Checks:    checks,
		Version:   hc.version,
	}
	if !dbHealthy || !llmHealthy {
		status.Status = "degraded"
	}
	if hc.stats != nil {
		snap := hc.stats.Snapshot()
		status.Pipeline = &snap
	}

	if status.Status != "healthy" {
		hc.logger.Warn("Health check degraded", map[string]interface{}{
			"database": status.Database,
			"openai":   status.OpenAI,
		})
	}
	return status, nil
}

func healthWord(ok bool) string {
	if ok {
		return "healthy"
	}
	return "unhealthy"
}

// checkDatabase checks database connectivity
func (hc *HealthChecker) checkDatabase(ctx context.Context) CheckResult {
	if hc.db == nil {
		return newResult(StatusFail, "Database is not connected", 0, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, databaseCheckTimeout)
	defer cancel()

	start := time.Now()
	err := hc.db.Ping(ctx)
	duration := time.Since(start)

	if err != nil {
		hc.logger.Error("Database health check failed", err, nil)
		return newResult(StatusFail, "Database connection failed", duration, nil)
	}
	return newResult(StatusPass, "Database connection is healthy", duration, nil)
}

// checkLLM asks the model for a fixed answer
func (hc *HealthChecker) checkLLM(ctx context.Context) CheckResult {
	if hc.llm == nil {
		return newResult(StatusFail, "LLM service is not configured", 0, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, llmCheckTimeout)
	defer cancel()

	start := time.Now()
	err := hc.llm.HealthCheck(ctx)
	duration := time.Since(start)

	if err != nil {
		hc.logger.Error("LLM health check failed", err, nil)
		return newResult(StatusFail, "LLM service is unreachable", duration, nil)
	}
	return newResult(StatusPass, "LLM service is healthy", duration, nil)
}

// checkSystem reports host usage; it never fails the overall status
func (hc *HealthChecker) checkSystem(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, systemCheckTimeout)
	defer cancel()

	start := time.Now()
	snapshot, err := hc.system(ctx)
	duration := time.Since(start)

	if err != nil {
		return newResult(StatusWarn, fmt.Sprintf("System metrics incomplete: %v", err), duration, snapshot)
	}
	if hot := snapshot.Pressure(metrics.PressureThreshold); len(hot) > 0 {
		return newResult(StatusWarn, "Host resources are nearly exhausted: "+strings.Join(hot, ", "), duration, snapshot)
	}
	return newResult(StatusPass, "Host resources are healthy", duration, snapshot)
}

func newResult(status, message string, duration time.Duration, details interface{}) CheckResult {
	r := CheckResult{
		Status:      status,
		Message:     message,
		DurationMs:  duration.Milliseconds(),
		LastChecked: time.Now().UTC(),
	}
	// avoid a typed-nil pointer showing up as "details": null
	if snap, ok := details.(*metrics.SystemMetrics); !ok || snap != nil {
		r.Details = details
	}
	return r
}
