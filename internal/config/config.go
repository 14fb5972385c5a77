package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration. It is built once at startup and
// passed explicitly to every component that needs it.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	CORS      CORSConfig      `yaml:"cors"`
	Auth      AuthConfig      `yaml:"auth"`
	Security  SecurityConfig  `yaml:"security"`
	LLM       LLMConfig       `yaml:"llm"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host              string        `yaml:"host"`
	Port              string        `yaml:"port"`
	User              string        `yaml:"user"`
	Password          string        `yaml:"password"`
	Name              string        `yaml:"name"`
	SSLMode           string        `yaml:"ssl_mode"`
	MinConns          int           `yaml:"min_conns"`
	MaxConns          int           `yaml:"max_conns"`
	StatementTimeout  time.Duration `yaml:"statement_timeout"`
	AcquireTimeout    time.Duration `yaml:"acquire_timeout"`
	MaxConnIdleTime   time.Duration `yaml:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `yaml:"health_check_period"`
	ConnectRetries    int           `yaml:"connect_retries"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// AuthConfig holds session token configuration
type AuthConfig struct {
	Required  bool          `yaml:"required"`
	JWTSecret string        `yaml:"jwt_secret"`
	TTL       time.Duration `yaml:"ttl"`
	// Users maps a user ID to its bcrypt password hash
	Users map[string]string `yaml:"users"`
	// SecretGenerated is set when no secret was supplied and one was minted at load time
	SecretGenerated bool `yaml:"-"`
}

// SecurityConfig holds input screening, encryption and network policy
type SecurityConfig struct {
	EncryptionKey        string   `yaml:"encryption_key"`
	AllowedIPRanges      []string `yaml:"allowed_ip_ranges"`
	IPAllowlistEnabled   bool     `yaml:"ip_allowlist_enabled"`
	TrustProxyHeaders    bool     `yaml:"trust_proxy_headers"`
	InputMaxLength       int      `yaml:"input_max_length"`
	MaxRows              int      `yaml:"max_rows"`
	EncryptAuditPayloads bool     `yaml:"encrypt_audit_payloads"`
}

// LLMConfig holds the chat-completions collaborator configuration
type LLMConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	APIVersion     string        `yaml:"api_version"`
	DeploymentName string        `yaml:"deployment_name"`
	APIKey         string        `yaml:"api_key"`
	IssuerURL      string        `yaml:"issuer_url"`
	ClientID       string        `yaml:"client_id"`
	ClientSecret   string        `yaml:"client_secret"`
	Scope          string        `yaml:"scope"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
}

// RateLimitConfig holds per-route request budgets
type RateLimitConfig struct {
	Chat      int           `yaml:"chat"`
	Analytics int           `yaml:"analytics"`
	Health    int           `yaml:"health"`
	Validate  int           `yaml:"validate"`
	Window    time.Duration `yaml:"window"`
}

// DefaultAllowedIPRanges are loopback and the RFC 1918 private networks
var DefaultAllowedIPRanges = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
}

// Defaults returns the configuration used when nothing is overridden
func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:              "localhost",
			Port:              "5432",
			User:              "postgres",
			Name:              "postgres",
			SSLMode:           "prefer",
			MinConns:          1,
			MaxConns:          10,
			StatementTimeout:  30 * time.Second,
			AcquireTimeout:    5 * time.Second,
			MaxConnIdleTime:   5 * time.Minute,
			HealthCheckPeriod: time.Minute,
			ConnectRetries:    3,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         "5000",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:5000"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-Id"},
		},
		Auth: AuthConfig{
			TTL:   24 * time.Hour,
			Users: map[string]string{},
		},
		Security: SecurityConfig{
			AllowedIPRanges:   append([]string(nil), DefaultAllowedIPRanges...),
			TrustProxyHeaders: true,
			InputMaxLength:    1000,
			MaxRows:           100,
		},
		LLM: LLMConfig{
			APIVersion: "2024-02-01",
			Scope:      "https://cognitiveservices.azure.com/.default",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			RetryDelay: time.Second,
		},
		RateLimit: RateLimitConfig{
			Chat:      30,
			Analytics: 10,
			Health:    100,
			Validate:  30,
			Window:    time.Minute,
		},
	}
}

// Load loads configuration from .env, an optional YAML file (CONFIG_FILE) and
// environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	/* A missing .env file is not an error */
	_ = godotenv.Load()

	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if cfg.Auth.JWTSecret == "" {
		secret, err := randomSecret(32)
		if err != nil {
			return nil, fmt.Errorf("failed to generate signing secret: %w", err)
		}
		cfg.Auth.JWTSecret = secret
		cfg.Auth.SecretGenerated = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	d := &c.Database
	d.Host = getEnv("POSTGRES_HOST", d.Host)
	d.Port = getEnv("POSTGRES_PORT", d.Port)
	d.User = getEnv("POSTGRES_USER", d.User)
	d.Password = getEnv("POSTGRES_PASSWORD", d.Password)
	d.Name = getEnv("POSTGRES_DATABASE", d.Name)
	d.SSLMode = getEnv("POSTGRES_SSL_MODE", d.SSLMode)
	d.MinConns = getEnvInt("DB_MIN_CONNS", d.MinConns)
	d.MaxConns = getEnvInt("DB_MAX_CONNS", d.MaxConns)
	d.StatementTimeout = getEnvDuration("DB_STATEMENT_TIMEOUT", d.StatementTimeout)
	d.AcquireTimeout = getEnvDuration("DB_ACQUIRE_TIMEOUT", d.AcquireTimeout)
	d.MaxConnIdleTime = getEnvDuration("DB_MAX_CONN_IDLE_TIME", d.MaxConnIdleTime)
	d.HealthCheckPeriod = getEnvDuration("DB_HEALTH_CHECK_PERIOD", d.HealthCheckPeriod)
	d.ConnectRetries = getEnvInt("DB_CONNECT_RETRIES", d.ConnectRetries)

	s := &c.Server
	s.Host = getEnv("SERVER_HOST", s.Host)
	s.Port = getEnv("SERVER_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", s.WriteTimeout)
	s.MaxBodyBytes = int64(getEnvInt("SERVER_MAX_BODY_BYTES", int(s.MaxBodyBytes)))

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
	c.Logging.Output = getEnv("LOG_OUTPUT", c.Logging.Output)

	c.CORS.AllowedOrigins = getEnvSlice("CORS_ALLOWED_ORIGINS", c.CORS.AllowedOrigins)
	c.CORS.AllowedMethods = getEnvSlice("CORS_ALLOWED_METHODS", c.CORS.AllowedMethods)
	c.CORS.AllowedHeaders = getEnvSlice("CORS_ALLOWED_HEADERS", c.CORS.AllowedHeaders)

	c.Auth.Required = getEnvBool("AUTH_REQUIRED", c.Auth.Required)
	c.Auth.JWTSecret = getEnv("JWT_SECRET_KEY", c.Auth.JWTSecret)
	c.Auth.TTL = getEnvDuration("SESSION_TTL", c.Auth.TTL)
	if users := os.Getenv("AUTH_USERS"); users != "" {
		c.Auth.Users = parseUsers(users)
	}

	sec := &c.Security
	sec.EncryptionKey = getEnv("ENCRYPTION_KEY", sec.EncryptionKey)
	sec.AllowedIPRanges = getEnvSlice("ALLOWED_IP_RANGES", sec.AllowedIPRanges)
	sec.IPAllowlistEnabled = getEnvBool("IP_ALLOWLIST_ENABLED", sec.IPAllowlistEnabled)
	sec.TrustProxyHeaders = getEnvBool("TRUSTED_PROXY_HEADERS", sec.TrustProxyHeaders)
	sec.InputMaxLength = getEnvInt("INPUT_MAX_LENGTH", sec.InputMaxLength)
	sec.MaxRows = getEnvInt("SQL_MAX_ROWS", sec.MaxRows)
	sec.EncryptAuditPayloads = getEnvBool("AUDIT_ENCRYPT_PAYLOADS", sec.EncryptAuditPayloads)

	l := &c.LLM
	l.Endpoint = getEnv("AZURE_OPENAI_ENDPOINT", l.Endpoint)
	l.APIVersion = getEnv("AZURE_OPENAI_API_VERSION", l.APIVersion)
	l.DeploymentName = getEnv("AZURE_OPENAI_DEPLOYMENT_NAME", l.DeploymentName)
	l.APIKey = getEnv("AZURE_OPENAI_API_KEY", l.APIKey)
	l.IssuerURL = getEnv("AZURE_OPENAI_ISSUER_URL", l.IssuerURL)
	l.ClientID = getEnv("AZURE_OPENAI_CLIENT_ID", l.ClientID)
	l.ClientSecret = getEnv("AZURE_OPENAI_CLIENT_SECRET", l.ClientSecret)
	l.Scope = getEnv("AZURE_OPENAI_SCOPE", l.Scope)
	l.Timeout = getEnvDuration("LLM_TIMEOUT", l.Timeout)
	l.MaxRetries = getEnvInt("LLM_MAX_RETRIES", l.MaxRetries)
	l.RetryDelay = getEnvDuration("LLM_RETRY_DELAY", l.RetryDelay)

	r := &c.RateLimit
	r.Chat = getEnvInt("RATE_LIMIT_CHAT", r.Chat)
	r.Analytics = getEnvInt("RATE_LIMIT_ANALYTICS", r.Analytics)
	r.Health = getEnvInt("RATE_LIMIT_HEALTH", r.Health)
	r.Validate = getEnvInt("RATE_LIMIT_VALIDATE", r.Validate)
	r.Window = getEnvDuration("RATE_LIMIT_WINDOW", r.Window)
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	d := c.Database
	if d.MinConns < 0 {
		return fmt.Errorf("database min_conns must not be negative, got %d", d.MinConns)
	}
	if d.MaxConns < 1 {
		return fmt.Errorf("database max_conns must be at least 1, got %d", d.MaxConns)
	}
	if d.MinConns > d.MaxConns {
		return fmt.Errorf("database min_conns (%d) exceeds max_conns (%d)", d.MinConns, d.MaxConns)
	}
	if d.StatementTimeout <= 0 {
		return fmt.Errorf("database statement_timeout must be positive")
	}
	if d.AcquireTimeout <= 0 {
		return fmt.Errorf("database acquire_timeout must be positive")
	}
	if c.Security.MaxRows < 1 {
		return fmt.Errorf("security max_rows must be at least 1, got %d", c.Security.MaxRows)
	}
	if c.Security.InputMaxLength < 1 {
		return fmt.Errorf("security input_max_length must be at least 1, got %d", c.Security.InputMaxLength)
	}
	for _, cidr := range c.Security.AllowedIPRanges {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("invalid allowed IP range %q: %w", cidr, err)
		}
	}
	if c.Auth.Required && c.Auth.JWTSecret == "" {
		return fmt.Errorf("a signing secret is required when authentication is enabled")
	}
	if c.Auth.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	return nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, quoteDSNValue(c.Password), c.Name, c.SSLMode)
}

// Address returns host:port for the HTTP listener
func (c *ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Configured reports whether enough is set to reach the LLM service
func (c *LLMConfig) Configured() bool {
	return c.Endpoint != "" && c.DeploymentName != ""
}

func quoteDSNValue(v string) string {
	if v == "" {
		return "''"
	}
	if !strings.ContainsAny(v, " '\\") {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

/* parseUsers reads "alice:$2a$...,bob:$2a$..." */
func parseUsers(value string) map[string]string {
	users := make(map[string]string)
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		idx := strings.Index(entry, ":")
		if idx <= 0 || idx == len(entry)-1 {
			continue
		}
		users[entry[:idx]] = entry[idx+1:]
	}
	return users
}

func randomSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return defaultValue
	}
	return parts
}
