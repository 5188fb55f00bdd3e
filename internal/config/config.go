package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendMemory   Backend = "memory"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	ServerURL string `env:"BUNKER_SERVER_URL" envDefault:"ws://localhost:5000/ws"`
	HTTPAddr  string `env:"BUNKER_HTTP_ADDR" envDefault:"127.0.0.1:8081"`

	SessionBackend Backend       `env:"BUNKER_SESSION_BACKEND" envDefault:"sqlite"`
	SessionPath    string        `env:"BUNKER_SESSION_PATH" envDefault:"bunker_session.db"`
	SessionDSN     string        `env:"BUNKER_SESSION_DSN"`
	SessionTTL     time.Duration `env:"BUNKER_SESSION_TTL" envDefault:"24h"`

	RestoreTimeout time.Duration `env:"BUNKER_RESTORE_TIMEOUT" envDefault:"10s"`
	ReconnectMin   time.Duration `env:"BUNKER_RECONNECT_MIN" envDefault:"500ms"`
	ReconnectMax   time.Duration `env:"BUNKER_RECONNECT_MAX" envDefault:"10s"`

	LogLevel string `env:"BUNKER_LOG_LEVEL" envDefault:"info"`
	LogDev   bool   `env:"BUNKER_LOG_DEV" envDefault:"false"`
}

// Load reads the optional dotenv files, then the environment. Variables
// already set in the environment win over the files.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("%w: server url is empty", ErrInvalid)
	}
	switch c.SessionBackend {
	case BackendSQLite:
		if c.SessionPath == "" {
			return fmt.Errorf("%w: sqlite backend needs BUNKER_SESSION_PATH", ErrInvalid)
		}
	case BackendPostgres:
		if c.SessionDSN == "" {
			return fmt.Errorf("%w: postgres backend needs BUNKER_SESSION_DSN", ErrInvalid)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown session backend %q", ErrInvalid, c.SessionBackend)
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"BUNKER_SESSION_TTL", c.SessionTTL},
		{"BUNKER_RESTORE_TIMEOUT", c.RestoreTimeout},
		{"BUNKER_RECONNECT_MIN", c.ReconnectMin},
		{"BUNKER_RECONNECT_MAX", c.ReconnectMax},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalid, d.name)
		}
	}
	if c.ReconnectMax < c.ReconnectMin {
		return fmt.Errorf("%w: BUNKER_RECONNECT_MAX is below BUNKER_RECONNECT_MIN", ErrInvalid)
	}
	return nil
}
