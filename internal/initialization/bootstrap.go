package initialization

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/neurondb/NeuronQuery/api/internal/auth"
	"github.com/neurondb/NeuronQuery/api/internal/auth/oidc"
	"github.com/neurondb/NeuronQuery/api/internal/chat"
	"github.com/neurondb/NeuronQuery/api/internal/config"
	"github.com/neurondb/NeuronQuery/api/internal/database"
	"github.com/neurondb/NeuronQuery/api/internal/llm"
	"github.com/neurondb/NeuronQuery/api/internal/logging"
	"github.com/neurondb/NeuronQuery/api/internal/metrics"
	"github.com/neurondb/NeuronQuery/api/internal/security"
	"github.com/neurondb/NeuronQuery/api/internal/sqlguard"
	"github.com/neurondb/NeuronQuery/api/internal/utils"
)

// App holds every long-lived component, built once at startup
type App struct {
	Config     *config.Config
	Logger     *logging.Logger
	Pool       *database.Pool
	Executor   *database.Executor
	Gate       *sqlguard.Gate
	Scanner    *security.InputScanner
	Cipher     *security.FieldCipher
	Allowlist  *security.IPAllowlist
	Events     *security.EventLog
	Tokens     *auth.TokenManager
	Translator llm.Translator
	Chat       *chat.Service
	Health     *HealthChecker
	Stats      *metrics.Stats
}

// Close releases the database pool
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}

// Bootstrap handles all application initialization tasks
type Bootstrap struct {
	cfg       *config.Config
	logger    *logging.Logger
	validator *Validator
}

// NewBootstrap creates a new bootstrap instance
func NewBootstrap(cfg *config.Config, logger *logging.Logger) *Bootstrap {
	return &Bootstrap{
		cfg:       cfg,
		logger:    logger,
		validator: NewValidator(logger),
	}
}

// Initialize builds the application in dependency order. ctx must outlive
// the process: the LLM token source refreshes with it.
func (b *Bootstrap) Initialize(ctx context.Context) (*App, error) {
	bm := NewBootstrapMetrics()
	defer func() {
		bm.Finish()
		bm.LogMetrics(b.logger)
	}()

	b.logger.Info("Starting application bootstrap sequence", nil)

	app := &App{
		Config: b.cfg,
		Logger: b.logger,
		Stats:  metrics.GlobalStats(),
		Events: security.NewEventLog(b.logger, b.cfg.Security.TrustProxyHeaders),
	}

	// Step 1: Review configuration
	if err := b.step(bm, "validation", func() error {
		b.logConfig()
		if result := b.validator.ValidateAll(b.cfg); !result.Valid {
			return fmt.Errorf("invalid configuration: %s", strings.Join(result.Errors, "; "))
		}
		return nil
	}); err != nil {
		return nil, err
	}

	// Step 2: Security primitives
	if err := b.step(bm, "security", func() error {
		return b.initSecurity(app)
	}); err != nil {
		return nil, err
	}

	// Step 3: Database pool (with retry)
	if err := b.step(bm, "database", func() error {
		pool, err := database.Connect(ctx, &b.cfg.Database, b.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		app.Pool = pool
		app.Executor = database.NewExecutor(pool, &b.cfg.Database, b.logger)
		return nil
	}); err != nil {
		return nil, err
	}

	// Step 4: Fixed queries must pass the same gate as generated ones
	app.Gate = sqlguard.NewGate(b.cfg.Security.MaxRows, b.logger)
	if err := b.step(bm, "analytics_preflight", func() error {
		return database.PreflightAnalytics(app.Gate)
	}); err != nil {
		app.Close()
		return nil, err
	}

	// Step 5: LLM translator; a missing or broken configuration degrades health instead of failing startup
	var prober Prober
	_ = b.step(bm, "llm", func() error {
		translator, err := b.initTranslator(ctx)
		if err != nil {
			b.logger.Warn("LLM service unavailable", map[string]interface{}{"error": err.Error()})
			app.Translator = llm.Unavailable{Err: err}
			return err
		}
		app.Translator = translator
		prober = translator
		return nil
	})

	// Step 6: Chat pipeline
	var auditCipher *security.FieldCipher
	if b.cfg.Security.EncryptAuditPayloads {
		auditCipher = app.Cipher
	}
	app.Chat = chat.NewService(chat.Deps{
		Scanner:        app.Scanner,
		Schema:         app.Executor,
		Translator:     app.Translator,
		Gate:           app.Gate,
		Runner:         app.Executor,
		Auditor:        chat.NewAuditor(b.logger, auditCipher),
		Events:         app.Events,
		Stats:          app.Stats,
		MaxInputLength: b.cfg.Security.InputMaxLength,
		Logger:         b.logger,
	})

	// Step 7: Perform health check
	app.Health = NewHealthChecker(app.Executor, prober, app.Stats, b.logger)
	healthStart := time.Now()
	status, err := app.Health.CheckAll(ctx)
	healthy := err == nil && status.Status == "healthy"
	bm.TrackStep("health_check", time.Since(healthStart), healthy)
	if healthy {
		b.logger.Info("Health check passed", nil)
	} else if status != nil {
		b.logger.Info("Health check completed with issues", map[string]interface{}{
			"status":   status.Status,
			"database": status.Database,
			"openai":   status.OpenAI,
		})
	}

	b.logger.Info("Application bootstrap completed successfully", nil)
	return app, nil
}

func (b *Bootstrap) step(bm *BootstrapMetrics, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	bm.TrackStep(name, time.Since(start), err == nil)
	return err
}

// initSecurity builds the scanner, cipher, allow-list and session tokens
func (b *Bootstrap) initSecurity(app *App) error {
	app.Scanner = security.NewInputScanner(b.logger)

	cipher, err := security.NewFieldCipher(b.cfg.Security.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize encryption: %w", err)
	}
	if cipher.Ephemeral() {
		b.logger.Warn("ENCRYPTION_KEY not set; using an ephemeral key", map[string]interface{}{
			"impact": "encrypted payloads cannot be decrypted after a restart",
		})
		app.Events.Log(nil, security.EventEphemeralKeyUsed, nil)
	}
	app.Cipher = cipher

	allow, err := security.NewIPAllowlist(b.cfg.Security.AllowedIPRanges, b.logger)
	if err != nil {
		return err
	}
	app.Allowlist = allow

	if b.cfg.Auth.SecretGenerated {
		b.logger.Warn("JWT_SECRET_KEY not set; generated a signing secret for this process", nil)
	}
	tokens, err := auth.NewTokenManager(b.cfg.Auth.JWTSecret, b.cfg.Auth.TTL, b.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize session tokens: %w", err)
	}
	app.Tokens = tokens
	return nil
}

// initTranslator prefers an API key and falls back to OIDC client credentials
func (b *Bootstrap) initTranslator(ctx context.Context) (*llm.Service, error) {
	cfg := &b.cfg.LLM
	if !cfg.Configured() {
		return nil, llm.ErrNotConfigured
	}

	var client *llm.Client
	var err error
	if cfg.APIKey != "" {
		client, err = llm.NewClient(cfg, nil, b.logger)
	} else {
		provider, perr := oidc.NewProvider(ctx, oidc.ClientCredentials{
			IssuerURL:    cfg.IssuerURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       []string{cfg.Scope},
		})
		if perr != nil {
			return nil, perr
		}
		b.logger.Info("LLM service identity discovered", map[string]interface{}{
			"token_url": provider.TokenURL(),
		})
		client, err = llm.NewClient(cfg, provider.TokenSource(ctx), b.logger)
	}
	if err != nil {
		return nil, err
	}
	return llm.NewService(client, b.logger), nil
}

// logConfig logs the effective configuration with secrets redacted
func (b *Bootstrap) logConfig() {
	fields, err := RedactedConfig(b.cfg)
	if err != nil {
		b.logger.Warn("Could not render configuration for logging", map[string]interface{}{"error": err.Error()})
		return
	}
	b.logger.Info("Effective configuration", fields)
}

// RedactedConfig renders cfg as a map with sensitive values replaced
func RedactedConfig(cfg *config.Config) (map[string]interface{}, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	// user entries are keyed by user ID, so list the IDs only
	if authSection, ok := raw["auth"].(map[string]interface{}); ok {
		if users, ok := authSection["users"].(map[string]interface{}); ok {
			ids := make([]string, 0, len(users))
			for id := range users {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			listed := make([]interface{}, len(ids))
			for i, id := range ids {
				listed[i] = id
			}
			authSection["users"] = listed
		}
	}
	return utils.RedactMap(raw), nil
}
