package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuronquery_api_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neuronquery_api_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// SQL gate outcomes
	gateRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuronquery_sql_gate_rejections_total",
			Help: "Candidate statements refused by the SQL gate, by reason",
		},
		[]string{"reason"},
	)

	inputRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuronquery_input_rejections_total",
			Help: "User inputs refused by the threat scanner, by warning",
		},
		[]string{"warning"},
	)

	securityEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuronquery_security_events_total",
			Help: "Security events logged, by type",
		},
		[]string{"event_type"},
	)

	// Execution guard
	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neuronquery_query_duration_seconds",
			Help:    "Execution time of admitted statements",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"complexity", "outcome"},
	)

	queryRowsReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "neuronquery_query_rows_returned",
			Help:    "Rows returned per admitted statement",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500, 1000},
		},
	)

	poolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "neuronquery_db_pool_connections",
			Help: "Database pool connections by state",
		},
		[]string{"state"},
	)

	// LLM collaborator
	llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuronquery_llm_calls_total",
			Help: "Chat-completion calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	llmCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neuronquery_llm_call_duration_seconds",
			Help:    "Chat-completion latency including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint string, statusCode int, durationSeconds float64) {
	httpRequestsTotal.WithLabelValues(method, endpoint, statusClass(statusCode)).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

func statusClass(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

// RecordGateRejection counts a statement refused by the SQL gate
func RecordGateRejection(reason string) {
	gateRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordInputRejection counts an input refused by the threat scanner
func RecordInputRejection(warning string) {
	inputRejectionsTotal.WithLabelValues(warning).Inc()
}

// RecordSecurityEvent counts a logged security event
func RecordSecurityEvent(eventType string) {
	securityEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordQuery records execution of an admitted statement
func RecordQuery(complexity, outcome string, durationSeconds float64, rows int) {
	queryDuration.WithLabelValues(complexity, outcome).Observe(durationSeconds)
	if outcome == "success" {
		queryRowsReturned.Observe(float64(rows))
	}
}

// SetPoolConnections publishes pool occupancy
func SetPoolConnections(acquired, idle, total int32) {
	poolConnections.WithLabelValues("acquired").Set(float64(acquired))
	poolConnections.WithLabelValues("idle").Set(float64(idle))
	poolConnections.WithLabelValues("total").Set(float64(total))
}

// RecordLLMCall records a chat-completion round trip
func RecordLLMCall(operation string, success bool, durationSeconds float64) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	llmCallsTotal.WithLabelValues(operation, outcome).Inc()
	llmCallDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
