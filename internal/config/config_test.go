package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Database.MinConns)
	assert.Equal(t, 10, cfg.Database.MaxConns)
	assert.Equal(t, 30*time.Second, cfg.Database.StatementTimeout)
	assert.Equal(t, 100, cfg.Security.MaxRows)
	assert.Equal(t, 1000, cfg.Security.InputMaxLength)
	assert.Equal(t, DefaultAllowedIPRanges, cfg.Security.AllowedIPRanges)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TTL)
	assert.True(t, cfg.Auth.SecretGenerated)
	assert.NotEmpty(t, cfg.Auth.JWTSecret)
	assert.Equal(t, 30, cfg.RateLimit.Chat)
	assert.Equal(t, 10, cfg.RateLimit.Analytics)
	assert.Equal(t, 100, cfg.RateLimit.Health)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("DB_MAX_CONNS", "20")
	t.Setenv("DB_STATEMENT_TIMEOUT", "10s")
	t.Setenv("JWT_SECRET_KEY", "s3cret")
	t.Setenv("ALLOWED_IP_RANGES", "10.1.0.0/16, 127.0.0.0/8")
	t.Setenv("AUTH_USERS", "alice:$2a$10$abc,bob:$2a$10$def,broken")
	t.Setenv("AUTH_REQUIRED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 20, cfg.Database.MaxConns)
	assert.Equal(t, 10*time.Second, cfg.Database.StatementTimeout)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.False(t, cfg.Auth.SecretGenerated)
	assert.True(t, cfg.Auth.Required)
	assert.Equal(t, []string{"10.1.0.0/16", "127.0.0.0/8"}, cfg.Security.AllowedIPRanges)
	assert.Equal(t, map[string]string{"alice": "$2a$10$abc", "bob": "$2a$10$def"}, cfg.Auth.Users)
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "neuronquery.yaml")
	content := `
database:
  host: yaml-host
  max_conns: 4
  statement_timeout: 15s
security:
  max_rows: 50
rate_limit:
  chat: 5
auth:
  users:
    carol: "$2a$10$xyz"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("POSTGRES_HOST", "env-host")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env-host", cfg.Database.Host)
	assert.Equal(t, 4, cfg.Database.MaxConns)
	assert.Equal(t, 15*time.Second, cfg.Database.StatementTimeout)
	assert.Equal(t, 50, cfg.Security.MaxRows)
	assert.Equal(t, 5, cfg.RateLimit.Chat)
	assert.Equal(t, "$2a$10$xyz", cfg.Auth.Users["carol"])
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"negative min conns", func(c *Config) { c.Database.MinConns = -1 }, true},
		{"zero max conns", func(c *Config) { c.Database.MaxConns = 0 }, true},
		{"min above max", func(c *Config) { c.Database.MinConns = 11 }, true},
		{"zero statement timeout", func(c *Config) { c.Database.StatementTimeout = 0 }, true},
		{"zero max rows", func(c *Config) { c.Security.MaxRows = 0 }, true},
		{"bad cidr", func(c *Config) { c.Security.AllowedIPRanges = []string{"10.0.0.0/33"} }, true},
		{"auth without secret", func(c *Config) { c.Auth.Required = true; c.Auth.JWTSecret = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Auth.JWTSecret = "secret"
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: "5432", User: "u", Password: "p w'x", Name: "n", SSLMode: "require"}
	assert.Equal(t, `host=h port=5432 user=u password='p w\'x' dbname=n sslmode=require`, d.DSN())

	d.Password = ""
	assert.Equal(t, "host=h port=5432 user=u password='' dbname=n sslmode=require", d.DSN())
}
