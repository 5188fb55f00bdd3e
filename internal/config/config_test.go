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
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:5000/ws", cfg.ServerURL)
	assert.Equal(t, "127.0.0.1:8081", cfg.HTTPAddr)
	assert.Equal(t, BackendSQLite, cfg.SessionBackend)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 10*time.Second, cfg.RestoreTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.ReconnectMin)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.LogDev)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BUNKER_SERVER_URL", "wss://bunker.example/ws")
	t.Setenv("BUNKER_SESSION_BACKEND", "memory")
	t.Setenv("BUNKER_RESTORE_TIMEOUT", "3s")
	t.Setenv("BUNKER_LOG_DEV", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "wss://bunker.example/ws", cfg.ServerURL)
	assert.Equal(t, BackendMemory, cfg.SessionBackend)
	assert.Equal(t, 3*time.Second, cfg.RestoreTimeout)
	assert.True(t, cfg.LogDev)
}

func TestLoad_DotenvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("BUNKER_HTTP_ADDR=127.0.0.1:9999\n"), 0o600))
	t.Setenv("BUNKER_HTTP_ADDR", "")
	require.NoError(t, os.Unsetenv("BUNKER_HTTP_ADDR"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.HTTPAddr)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("BUNKER_SESSION_BACKEND", "redis")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	valid := Config{
		ServerURL:      "ws://localhost:5000/ws",
		SessionBackend: BackendMemory,
		SessionTTL:     time.Hour,
		RestoreTimeout: time.Second,
		ReconnectMin:   time.Second,
		ReconnectMax:   2 * time.Second,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty server url", func(c *Config) { c.ServerURL = "" }},
		{"unknown backend", func(c *Config) { c.SessionBackend = "redis" }},
		{"postgres without dsn", func(c *Config) { c.SessionBackend = BackendPostgres }},
		{"sqlite without path", func(c *Config) { c.SessionBackend = BackendSQLite }},
		{"zero ttl", func(c *Config) { c.SessionTTL = 0 }},
		{"negative timeout", func(c *Config) { c.RestoreTimeout = -time.Second }},
		{"max below min", func(c *Config) { c.ReconnectMax = time.Millisecond }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}
