package initialization

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/neurondb/NeuronQuery/api/internal/config"
	"github.com/neurondb/NeuronQuery/api/internal/logging"
	"golang.org/x/crypto/bcrypt"
)

/* Validator reviews the loaded configuration before anything connects */
type Validator struct {
	logger *logging.Logger
}

/* NewValidator creates a new validator instance */
func NewValidator(logger *logging.Logger) *Validator {
	return &Validator{
		logger: logger,
	}
}

/* ValidationResult represents the result of validation */
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

func newValidationResult() ValidationResult {
	return ValidationResult{
		Valid:    true,
		Errors:   []string{},
		Warnings: []string{},
	}
}

func (r *ValidationResult) fail(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Valid = false
}

func (r *ValidationResult) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) merge(other ValidationResult) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Valid = r.Valid && other.Valid
}

/* ValidateServer checks the listener settings */
func (v *Validator) ValidateServer(cfg config.ServerConfig) ValidationResult {
	result := newValidationResult()

	if !isValidPort(cfg.Port) {
		result.fail("Invalid server port: %s", cfg.Port)
	}
	if cfg.MaxBodyBytes <= 0 {
		result.fail("Server max body size must be positive")
	}
	if cfg.WriteTimeout > 0 && cfg.WriteTimeout < 10e9 {
		result.warn("Server write timeout %s is shorter than a typical LLM round trip", cfg.WriteTimeout)
	}

	return result
}

/* ValidateDatabase checks connection settings that Config.Validate leaves alone */
func (v *Validator) ValidateDatabase(cfg config.DatabaseConfig) ValidationResult {
	result := newValidationResult()

	if cfg.Host == "" {
		result.fail("Database host is empty")
	}
	if !isValidPort(cfg.Port) {
		result.fail("Invalid database port: %s", cfg.Port)
	}
	if cfg.Name == "" {
		result.warn("Database name is empty")
	}
	switch cfg.SSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		result.fail("Invalid database ssl mode: %s", cfg.SSLMode)
	}
	if cfg.SSLMode == "disable" && cfg.Host != "localhost" && cfg.Host != "127.0.0.1" {
		result.warn("Database connection to %s is not encrypted", cfg.Host)
	}

	return result
}

/* ValidateLLM checks the completions endpoint settings */
func (v *Validator) ValidateLLM(cfg config.LLMConfig) ValidationResult {
	result := newValidationResult()

	if !cfg.Configured() {
		result.warn("LLM service is not configured; chat requests will fail")
		return result
	}

	parsed, err := url.Parse(cfg.Endpoint)
	if err != nil || parsed.Host == "" {
		result.fail("Invalid LLM endpoint: %s", cfg.Endpoint)
		return result
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		result.fail("Invalid LLM endpoint scheme: %s (expected http or https)", parsed.Scheme)
	}
	if parsed.Scheme == "http" {
		result.warn("LLM endpoint does not use TLS")
	}
	if cfg.APIKey == "" && (cfg.IssuerURL == "" || cfg.ClientID == "") {
		result.fail("LLM service needs an API key or OIDC client credentials")
	}
	if cfg.MaxRetries < 1 {
		result.warn("LLM retries disabled (max_retries=%d)", cfg.MaxRetries)
	}

	return result
}

/* ValidateSecurity reviews auth, encryption and network policy */
func (v *Validator) ValidateSecurity(cfg *config.Config) ValidationResult {
	result := newValidationResult()

	if cfg.Auth.SecretGenerated {
		result.warn("Signing secret was generated at startup; sessions will not survive a restart")
	}
	if !cfg.Auth.Required {
		result.warn("Authentication is disabled; API routes accept anonymous callers")
	}
	if cfg.Auth.Required && len(cfg.Auth.Users) == 0 {
		result.warn("Authentication is required but no users are configured")
	}

	users := make([]string, 0, len(cfg.Auth.Users))
	for user := range cfg.Auth.Users {
		users = append(users, user)
	}
	sort.Strings(users)
	for _, user := range users {
		if _, err := bcrypt.Cost([]byte(cfg.Auth.Users[user])); err != nil {
			result.fail("Password hash for user %q is not a bcrypt hash", user)
		}
	}

	if cfg.Security.EncryptionKey == "" {
		result.warn("No encryption key configured; encrypted data will not survive a restart")
	}
	if cfg.Security.IPAllowlistEnabled && len(cfg.Security.AllowedIPRanges) == 0 {
		result.fail("IP allow-list is enabled with no ranges")
	}
	for _, origin := range cfg.CORS.AllowedOrigins {
		if origin == "*" {
			result.warn("CORS allows any origin")
			break
		}
	}

	return result
}

/* ValidateAll performs all validation checks */
func (v *Validator) ValidateAll(cfg *config.Config) ValidationResult {
	result := newValidationResult()
	result.merge(v.ValidateServer(cfg.Server))
	result.merge(v.ValidateDatabase(cfg.Database))
	result.merge(v.ValidateLLM(cfg.LLM))
	result.merge(v.ValidateSecurity(cfg))

	for _, w := range result.Warnings {
		v.logger.Warn("Configuration warning", map[string]interface{}{"warning": w})
	}
	for _, e := range result.Errors {
		v.logger.Error("Configuration error", fmt.Errorf("%s", e), nil)
	}

	return result
}

/* isValidPort checks if a port string is valid */
func isValidPort(port string) bool {
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}
