package handlers

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/neurondb/NeuronQuery/api/internal/auth"
	"github.com/neurondb/NeuronQuery/api/internal/config"
	"github.com/neurondb/NeuronQuery/api/internal/logging"
	"github.com/neurondb/NeuronQuery/api/internal/middleware"
	"github.com/neurondb/NeuronQuery/api/internal/security"
	"github.com/neurondb/NeuronQuery/api/internal/sqlguard"
)

// RouterDeps are the collaborators behind the HTTP surface
type RouterDeps struct {
	Config    *config.Config
	Logger    *logging.Logger
	Chat      ChatService
	Data      DataSource
	Gate      sqlguard.Sanitizer
	Health    HealthReporter
	Scanner   *security.InputScanner
	Tokens    *auth.TokenManager
	Events    *security.EventLog
	Allowlist *security.IPAllowlist
	Metrics   http.Handler
}

// Router is the assembled HTTP handler with its per-route pipelines
type Router struct {
	handler   http.Handler
	Pipelines []*middleware.Pipeline
	limiters  []*middleware.RateLimiter
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.handler.ServeHTTP(w, r)
}

// Close stops the rate limiter janitors
func (rt *Router) Close() {
	for _, l := range rt.limiters {
		l.Close()
	}
}

type route struct {
	path    string
	method  string
	stages  []middleware.Stage
	handler http.HandlerFunc
}

// NewRouter wires every route behind its declared pipeline and logs the pipelines
func NewRouter(d RouterDeps) (*Router, error) {
	cfg := d.Config
	trustProxy := cfg.Security.TrustProxyHeaders
	maxLength := cfg.Security.InputMaxLength
	maxBody := cfg.Server.MaxBodyBytes

	limits := cfg.RateLimit
	chatLimiter := middleware.NewRateLimiter("chat", limits.Chat, limits.Window)
	validateLimiter := middleware.NewRateLimiter("validate", limits.Validate, limits.Window)
	analyticsLimiter := middleware.NewRateLimiter("analytics", limits.Analytics, limits.Window)
	healthLimiter := middleware.NewRateLimiter("health", limits.Health, limits.Window)

	rt := &Router{
		limiters: []*middleware.RateLimiter{chatLimiter, validateLimiter, analyticsLimiter, healthLimiter},
	}

	// Stages absent from a route's list do not run; present ones always run in pipeline order
	ipStage := middleware.IPAllowlistStage(d.Allowlist, d.Events, trustProxy)
	guarded := func(stages ...middleware.Stage) []middleware.Stage {
		if !cfg.Security.IPAllowlistEnabled {
			return stages
		}
		return append([]middleware.Stage{ipStage}, stages...)
	}
	authStage := middleware.AuthStage(d.Tokens, d.Events, cfg.Auth.Required)
	inputStage := middleware.InputScanStage(d.Scanner, d.Events, maxLength, maxBody)
	rate := func(l *middleware.RateLimiter) middleware.Stage {
		return middleware.RateLimitStage(l, d.Events, trustProxy)
	}

	chatHandlers := NewChatHandlers(d.Chat, cfg.CORS.AllowedOrigins, chatLimiter, d.Events, trustProxy, d.Logger)
	securityHandlers := NewSecurityHandlers(d.Scanner, d.Tokens, cfg.Auth.Users, d.Events, maxLength, d.Logger)
	dataHandlers := NewDataHandlers(d.Data, d.Gate, d.Logger)
	healthHandlers := NewHealthHandlers(d.Health, d.Logger)

	routes := []route{
		{"/api/chat", http.MethodPost, guarded(authStage, inputStage, rate(chatLimiter)), chatHandlers.Chat},
		{"/api/chat/ws", http.MethodGet, guarded(authStage, rate(chatLimiter)), chatHandlers.WebSocket},
		{"/api/security/validate", http.MethodPost, guarded(authStage, rate(validateLimiter)), securityHandlers.Validate},
		{"/api/analytics", http.MethodGet, guarded(authStage, rate(analyticsLimiter)), dataHandlers.Analytics},
		{"/api/schema", http.MethodGet, guarded(authStage, rate(analyticsLimiter)), dataHandlers.Schema},
		{"/api/health", http.MethodGet, []middleware.Stage{rate(healthLimiter)}, healthHandlers.Health},
		{"/api/auth/session", http.MethodPost, guarded(inputStage, rate(validateLimiter)), securityHandlers.CreateSession},
	}

	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware(d.Logger), middleware.RecoveryMiddleware(d.Logger))

	for _, rte := range routes {
		p, err := middleware.NewPipeline(rte.method+" "+rte.path, rte.stages...)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("invalid pipeline: %w", err)
		}
		p.Log(d.Logger)
		rt.Pipelines = append(rt.Pipelines, p)
		router.Handle(rte.path, p.Then(rte.handler)).Methods(rte.method)
	}

	if d.Metrics != nil {
		// the exporter is never public, whatever the allow-list setting
		p, err := middleware.NewPipeline("GET /metrics", ipStage)
		if err != nil {
			rt.Close()
			return nil, err
		}
		p.Log(d.Logger)
		rt.Pipelines = append(rt.Pipelines, p)
		router.Handle("/metrics", p.Then(d.Metrics)).Methods(http.MethodGet)
	}

	unmatched := func(h http.HandlerFunc) http.Handler {
		return middleware.LoggingMiddleware(d.Logger)(h)
	}
	router.NotFoundHandler = unmatched(NotFound)
	router.MethodNotAllowedHandler = unmatched(MethodNotAllowed)

	var handler http.Handler = router
	handler = middleware.RequestSizeMiddleware(maxBody)(handler)
	handler = middleware.CORSMiddleware(cfg.CORS)(handler)
	handler = middleware.SecurityHeadersMiddleware()(handler)
	handler = middleware.RequestIDMiddleware()(handler)
	rt.handler = handler

	return rt, nil
}
