package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurondb/NeuronQuery/api/internal/auth"
	"github.com/neurondb/NeuronQuery/api/internal/chat"
	"github.com/neurondb/NeuronQuery/api/internal/config"
	"github.com/neurondb/NeuronQuery/api/internal/database"
	"github.com/neurondb/NeuronQuery/api/internal/initialization"
	"github.com/neurondb/NeuronQuery/api/internal/logging"
	"github.com/neurondb/NeuronQuery/api/internal/metrics"
	"github.com/neurondb/NeuronQuery/api/internal/security"
	"github.com/neurondb/NeuronQuery/api/internal/sqlguard"
	testutil "github.com/neurondb/NeuronQuery/api/internal/testing"
)

type fakeHealth struct {
	status *initialization.HealthStatus
	err    error
}

func (f fakeHealth) CheckAll(ctx context.Context) (*initialization.HealthStatus, error) {
	return f.status, f.err
}

type server struct {
	client     *testutil.TestClient
	router     *Router
	translator *testutil.MockTranslator
	db         *testutil.MockDatabase
	tokens     *auth.TokenManager
}

func orderRows() database.Rows {
	return database.Rows{
		{{Name: "customer_name", Value: "Ada"}, {Name: "total_spent", Value: 1200.5}},
		{{Name: "customer_name", Value: "Grace"}, {Name: "total_spent", Value: 980.0}},
	}
}

func newServer(t *testing.T, mutate func(*config.Config), health HealthReporter) *server {
	t.Helper()

	cfg := testutil.TestConfig()
	if mutate != nil {
		mutate(cfg)
	}
	if health == nil {
		health = fakeHealth{status: &initialization.HealthStatus{Status: "healthy", Database: "healthy", OpenAI: "healthy"}}
	}

	logger := logging.Discard()
	s := &server{
		translator: testutil.NewMockTranslator("SELECT customer_name, total_spent FROM customers ORDER BY total_spent DESC LIMIT 5"),
		db:         testutil.NewMockDatabase(orderRows()),
	}

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TTL, logger)
	require.NoError(t, err)
	s.tokens = tokens

	allow, err := security.NewIPAllowlist(cfg.Security.AllowedIPRanges, logger)
	require.NoError(t, err)

	scanner := security.NewInputScanner(logger)
	events := security.NewEventLog(logger, cfg.Security.TrustProxyHeaders)
	gate := sqlguard.NewGate(cfg.Security.MaxRows, logger)

	svc := chat.NewService(chat.Deps{
		Scanner:    scanner,
		Schema:     s.db,
		Translator: s.translator,
		Gate:       gate,
		Runner:     s.db,
		Auditor:    chat.NewAuditor(logger, nil),
		Events:     events,
		Stats:      metrics.NewStats(),
		Logger:     logger,
	})

	s.router, err = NewRouter(RouterDeps{
		Config:    cfg,
		Logger:    logger,
		Chat:      svc,
		Data:      s.db,
		Gate:      gate,
		Health:    health,
		Scanner:   scanner,
		Tokens:    tokens,
		Events:    events,
		Allowlist: allow,
		Metrics:   metrics.Handler(),
	})
	require.NoError(t, err)
	t.Cleanup(s.router.Close)

	s.client = testutil.NewTestClient(t, s.router)
	return s
}

func TestChat(t *testing.T) {
	tests := []struct {
		name     string
		body     interface{}
		setup    func(*server)
		status   int
		errorMsg string
		executed int
	}{
		{
			name:     "answers a question",
			body:     map[string]string{"message": "Show me the top 5 customers by spending"},
			status:   http.StatusOK,
			executed: 1,
		},
		{
			name:     "empty message",
			body:     map[string]string{"message": "   "},
			status:   http.StatusBadRequest,
			errorMsg: chat.MessageRejectedInput,
		},
		{
			name:     "malformed body",
			body:     "{not json",
			status:   http.StatusBadRequest,
			errorMsg: "Invalid JSON body",
		},
		{
			name:     "injection caught by the input guard",
			body:     map[string]string{"message": "x' OR '1'='1"},
			status:   http.StatusBadRequest,
			errorMsg: "Invalid input detected",
		},
		{
			name:     "model output without a SELECT",
			body:     map[string]string{"message": "remove old orders"},
			setup:    func(s *server) { s.translator.SQLResponse = "I cannot help with that." },
			status:   http.StatusBadRequest,
			errorMsg: chat.MessageUntranslatable,
		},
		{
			name:     "translator failure",
			body:     map[string]string{"message": "how many orders"},
			setup:    func(s *server) { s.translator.SQLError = errors.New("quota exceeded") },
			status:   http.StatusBadRequest,
			errorMsg: chat.MessageUntranslatable,
		},
		{
			name:     "stacked statement is never executed",
			body:     map[string]string{"message": "show password hashes"},
			setup:    func(s *server) { s.translator.SQLResponse = "SELECT * FROM pg_shadow; DROP TABLE customers;" },
			status:   http.StatusBadRequest,
			errorMsg: chat.MessageRejectedStatement,
		},
		{
			name:     "execution failure",
			body:     map[string]string{"message": "how many orders"},
			setup:    func(s *server) { s.db.ExecError = database.ErrExecutionFailed },
			status:   http.StatusInternalServerError,
			errorMsg: chat.MessageExecutionFailed,
			executed: 1,
		},
		{
			name:     "pool exhausted",
			body:     map[string]string{"message": "how many orders"},
			setup:    func(s *server) { s.db.ExecError = database.ErrPoolExhausted },
			status:   http.StatusServiceUnavailable,
			errorMsg: chat.MessagePoolExhausted,
			executed: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(t, nil, nil)
			if tt.setup != nil {
				tt.setup(s)
			}

			resp, err := s.client.Post("/api/chat", tt.body)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			body := testutil.DecodeJSON(t, resp)

			if tt.status == http.StatusOK {
				assert.Equal(t, "success", body["status"])
				assert.Equal(t, "Here is what I found.", body["response"])
				assert.Equal(t, float64(2), body["row_count"])
				assert.NotContains(t, body, "sql")
			} else {
				assert.Equal(t, "error", body["status"])
				assert.Equal(t, tt.errorMsg, body["error"])
			}
			assert.Len(t, s.db.Executed, tt.executed)
		})
	}
}

func TestChat_InputGuardRunsBeforeTranslator(t *testing.T) {
	s := newServer(t, nil, nil)

	resp, err := s.client.Post("/api/chat", map[string]string{"message": "<script>alert(1)</script>"})
	require.NoError(t, err)
	body := testutil.DecodeJSON(t, resp)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, []interface{}{"Potential XSS attack detected"}, body["warnings"])
	assert.Empty(t, s.translator.Questions)
}

func TestChat_PoolExhaustedRetryAfter(t *testing.T) {
	s := newServer(t, nil, nil)
	s.db.ExecError = database.ErrPoolExhausted

	resp, err := s.client.Post("/api/chat", map[string]string{"message": "how many orders"})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestChat_AuthRequired(t *testing.T) {
	s := newServer(t, func(c *config.Config) { c.Auth.Required = true }, nil)

	resp, err := s.client.Post("/api/chat", map[string]string{"message": "how many orders"})
	require.NoError(t, err)
	body := testutil.DecodeJSON(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Missing or invalid authorization header", body["error"])
	assert.Empty(t, s.translator.Questions)

	require.NoError(t, s.client.Authenticate(s.tokens, "alice"))
	resp, err = s.client.Post("/api/chat", map[string]string{"message": "how many orders"})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	s.client.Token = "not-a-token"
	resp, err = s.client.Post("/api/chat", map[string]string{"message": "how many orders"})
	require.NoError(t, err)
	body = testutil.DecodeJSON(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid or expired token", body["error"])
}

func TestResponseHeaders(t *testing.T) {
	s := newServer(t, nil, nil)

	resp, err := s.client.Post("/api/chat", map[string]string{"message": "how many orders"})
	require.NoError(t, err)
	resp.Body.Close()

	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
	assert.Equal(t, "30", resp.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "29", resp.Header.Get("X-RateLimit-Remaining"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "default-src 'self'")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		body   interface{}
		status int
		valid  interface{}
	}{
		{"missing input", map[string]string{"text": "hi"}, http.StatusBadRequest, nil},
		{"malformed", "[", http.StatusBadRequest, nil},
		{"benign", map[string]string{"input": "What were total sales last year?"}, http.StatusOK, true},
		{"injection is reported, not blocked", map[string]string{"input": "SELECT * FROM users WHERE 1=1 OR 1=1"}, http.StatusOK, false},
		{"xss", map[string]string{"input": "<script>alert(1)</script>"}, http.StatusOK, false},
		{"custom max length", map[string]interface{}{"input": "abcdef", "max_length": 3}, http.StatusOK, false},
	}

	s := newServer(t, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.client.Post("/api/security/validate", tt.body)
			require.NoError(t, err)
			body := testutil.DecodeJSON(t, resp)
			assert.Equal(t, tt.status, resp.StatusCode)

			if tt.status != http.StatusOK {
				assert.Equal(t, "Input field required", body["error"])
				return
			}
			assert.Equal(t, "success", body["status"])
			validation := body["validation"].(map[string]interface{})
			assert.Equal(t, tt.valid, validation["valid"])
		})
	}
}

func TestCreateSession(t *testing.T) {
	password := "' OR 1=1 --"
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)

	s := newServer(t, func(c *config.Config) {
		c.Auth.Users = map[string]string{"alice": hash}
	}, nil)

	tests := []struct {
		name   string
		body   interface{}
		status int
	}{
		{"valid credentials", map[string]string{"user_id": "alice", "password": password}, http.StatusOK},
		{"wrong password", map[string]string{"user_id": "alice", "password": "nope"}, http.StatusUnauthorized},
		{"unknown user", map[string]string{"user_id": "mallory", "password": password}, http.StatusUnauthorized},
		{"missing fields", map[string]string{"user_id": "alice"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.client.Post("/api/auth/session", tt.body)
			require.NoError(t, err)
			body := testutil.DecodeJSON(t, resp)
			assert.Equal(t, tt.status, resp.StatusCode)

			if tt.status != http.StatusOK {
				assert.Equal(t, "error", body["status"])
				return
			}
			token, _ := body["token"].(string)
			claims, err := s.tokens.Validate(token)
			require.NoError(t, err)
			assert.Equal(t, "alice", claims.UserID)
			assert.Equal(t, body["session_id"], claims.SessionID)
		})
	}
}

func TestAnalytics(t *testing.T) {
	s := newServer(t, nil, nil)
	s.db.AnalyticsResult = &database.Analytics{
		Metrics: database.Row{{Name: "total_orders", Value: 42}},
	}

	resp, err := s.client.Get("/api/analytics")
	require.NoError(t, err)
	body := testutil.DecodeJSON(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["status"])
	analytics := body["analytics"].(map[string]interface{})
	assert.Equal(t, float64(42), analytics["metrics"].(map[string]interface{})["total_orders"])

	s.db.AnalyticsError = errors.New("relation \"orders\" does not exist")
	resp, err = s.client.Get("/api/analytics")
	require.NoError(t, err)
	body = testutil.DecodeJSON(t, resp)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Failed to retrieve analytics data.", body["error"])
}

func TestSchema(t *testing.T) {
	s := newServer(t, nil, nil)
	s.db.Samples = map[string]database.Rows{
		"orders": {
			{{Name: "order_id", Value: 1}},
			{{Name: "order_id", Value: 2}},
			{{Name: "order_id", Value: 3}},
		},
	}

	tests := []struct {
		name   string
		path   string
		status int
		rows   int
	}{
		{"snapshot only", "/api/schema", http.StatusOK, -1},
		{"with sample", "/api/schema?sample=orders&limit=2", http.StatusOK, 2},
		{"default limit", "/api/schema?sample=orders", http.StatusOK, 3},
		{"unknown table", "/api/schema?sample=customers", http.StatusNotFound, -1},
		{"limit too small", "/api/schema?sample=orders&limit=0", http.StatusBadRequest, -1},
		{"limit too large", "/api/schema?sample=orders&limit=1000", http.StatusBadRequest, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.client.Get(tt.path)
			require.NoError(t, err)
			body := testutil.DecodeJSON(t, resp)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.status != http.StatusOK {
				return
			}

			schema := body["schema"].(map[string]interface{})
			assert.Contains(t, schema["tables"], "orders")
			if tt.rows < 0 {
				assert.NotContains(t, body, "sample")
				return
			}
			sample := body["sample"].(map[string]interface{})
			assert.Len(t, sample["rows"], tt.rows)
		})
	}
}

func TestHealth(t *testing.T) {
	t.Run("degraded still answers 200", func(t *testing.T) {
		s := newServer(t, nil, fakeHealth{status: &initialization.HealthStatus{
			Status: "degraded", Database: "healthy", OpenAI: "unhealthy", Timestamp: time.Now(),
		}})

		resp, err := s.client.Get("/api/health")
		require.NoError(t, err)
		body := testutil.DecodeJSON(t, resp)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, "unhealthy", body["openai"])
	})

	t.Run("check failure", func(t *testing.T) {
		s := newServer(t, nil, fakeHealth{err: errors.New("health check aborted")})

		resp, err := s.client.Get("/api/health")
		require.NoError(t, err)
		body := testutil.DecodeJSON(t, resp)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, "unhealthy", body["status"])
		assert.Equal(t, "health check aborted", body["error"])
		assert.NotEmpty(t, body["timestamp"])
	})

	t.Run("rate limited", func(t *testing.T) {
		s := newServer(t, func(c *config.Config) { c.RateLimit.Health = 2 }, nil)

		for i := 0; i < 2; i++ {
			resp, err := s.client.Get("/api/health")
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		}
		resp, err := s.client.Get("/api/health")
		require.NoError(t, err)
		body := testutil.DecodeJSON(t, resp)
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.Equal(t, "Rate limit exceeded", body["error"])
		assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	})
}

func TestIPAllowlist(t *testing.T) {
	s := newServer(t, func(c *config.Config) {
		c.Security.IPAllowlistEnabled = true
		c.Security.AllowedIPRanges = []string{"10.0.0.0/8"}
	}, nil)

	resp, err := s.client.Post("/api/chat", map[string]string{"message": "how many orders"})
	require.NoError(t, err)
	body := testutil.DecodeJSON(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Access denied", body["error"])

	// health carries no allow-list stage
	resp, err = s.client.Get("/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	s.client.Header.Set("X-Forwarded-For", "10.1.2.3")
	resp, err = s.client.Post("/api/chat", map[string]string{"message": "how many orders"})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsAlwaysBehindAllowlist(t *testing.T) {
	s := newServer(t, nil, nil)

	resp, err := s.client.Get("/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	s.client.Header.Set("X-Forwarded-For", "203.0.113.7")
	resp, err = s.client.Get("/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	s := newServer(t, nil, nil)

	resp, err := s.client.Get("/api/unknown")
	require.NoError(t, err)
	body := testutil.DecodeJSON(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Endpoint not found", body["error"])
	assert.Equal(t, "error", body["status"])

	resp, err = s.client.Get("/api/chat")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRouterPipelines(t *testing.T) {
	pipelines := func(s *server) map[string]string {
		out := map[string]string{}
		for _, p := range s.router.Pipelines {
			out[p.Route] = p.String()
		}
		return out
	}

	open := pipelines(newServer(t, nil, nil))
	assert.Equal(t, map[string]string{
		"POST /api/chat":              "auth -> input_scan -> rate_limit -> handler",
		"GET /api/chat/ws":            "auth -> rate_limit -> handler",
		"POST /api/security/validate": "auth -> rate_limit -> handler",
		"GET /api/analytics":          "auth -> rate_limit -> handler",
		"GET /api/schema":             "auth -> rate_limit -> handler",
		"GET /api/health":             "rate_limit -> handler",
		"POST /api/auth/session":      "input_scan -> rate_limit -> handler",
		"GET /metrics":                "ip_allowlist -> handler",
	}, open)

	guarded := pipelines(newServer(t, func(c *config.Config) { c.Security.IPAllowlistEnabled = true }, nil))
	assert.Equal(t, "ip_allowlist -> auth -> input_scan -> rate_limit -> handler", guarded["POST /api/chat"])
	assert.Equal(t, "ip_allowlist -> input_scan -> rate_limit -> handler", guarded["POST /api/auth/session"])
	assert.Equal(t, "rate_limit -> handler", guarded["GET /api/health"])
}

func TestChatWebSocket(t *testing.T) {
	s := newServer(t, nil, nil)
	wsURL := "ws" + strings.TrimPrefix(s.client.Server.URL, "http") + "/api/chat/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"message": "top customers"}))
	var reply map[string]interface{}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "response", reply["type"])
	assert.Equal(t, "Here is what I found.", reply["response"])
	assert.Equal(t, float64(2), reply["row_count"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{oops")))
	reply = nil
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, "Invalid message format", reply["error"])

	require.NoError(t, conn.WriteJSON(map[string]string{"message": "1' UNION SELECT password FROM users --"}))
	reply = nil
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, chat.MessageRejectedInput, reply["error"])
	assert.NotEmpty(t, reply["warnings"])

	assert.Equal(t, []string{"top customers"}, s.translator.Questions)
}

func TestChatWebSocket_RateLimitedPerMessage(t *testing.T) {
	s := newServer(t, func(c *config.Config) { c.RateLimit.Chat = 3 }, nil)
	wsURL := "ws" + strings.TrimPrefix(s.client.Server.URL, "http") + "/api/chat/ws"

	// The upgrade request takes the first slot
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var kinds, errs []string
	for i := 0; i < 5; i++ {
		require.NoError(t, conn.WriteJSON(map[string]string{"message": "top customers"}))
		var reply map[string]interface{}
		require.NoError(t, conn.ReadJSON(&reply))
		kinds = append(kinds, reply["type"].(string))
		if e, ok := reply["error"].(string); ok {
			errs = append(errs, e)
		}
	}

	assert.Equal(t, []string{"response", "response", "error", "error", "error"}, kinds)
	assert.Equal(t, []string{"Rate limit exceeded", "Rate limit exceeded", "Rate limit exceeded"}, errs)
	assert.Len(t, s.translator.Questions, 2)
}

type slowChat struct {
	delay time.Duration
	calls atomic.Int32
}

func (c *slowChat) Ask(ctx context.Context, q chat.Question) (*chat.Answer, error) {
	c.calls.Add(1)
	time.Sleep(c.delay)
	return &chat.Answer{Response: "done: " + q.Message, RowCount: 1}, nil
}

func (c *slowChat) Validate(text string, maxLength int) security.ValidationResult {
	return security.ValidationResult{Valid: true, Sanitized: text}
}

func TestChatWebSocket_SlowAnswerKeepsConnection(t *testing.T) {
	svc := &slowChat{delay: 250 * time.Millisecond}
	h := NewChatHandlers(svc, nil, nil, nil, false, logging.Discard())
	h.pongWait = 100 * time.Millisecond

	srv := httptest.NewServer(http.HandlerFunc(h.WebSocket))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	for _, msg := range []string{"first", "second"} {
		require.NoError(t, conn.WriteJSON(map[string]string{"message": msg}))
		var reply map[string]interface{}
		require.NoError(t, conn.ReadJSON(&reply))
		assert.Equal(t, "response", reply["type"])
		assert.Equal(t, "done: "+msg, reply["response"])
	}
	assert.Equal(t, int32(2), svc.calls.Load())
}

func TestChatWebSocket_RejectsForeignOrigin(t *testing.T) {
	s := newServer(t, nil, nil)
	wsURL := "ws" + strings.TrimPrefix(s.client.Server.URL, "http") + "/api/chat/ws"

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
