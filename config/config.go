/*
config.go - Runtime configuration

PURPOSE:
  Collects server, database, auth and logging settings from the
  environment. A .env file in the working directory is loaded first when
  present; real environment variables win over it.

ENVIRONMENT:
  PORT            HTTP port (default 8080)
  DB_DRIVER       sqlite | postgres (default sqlite)
  DB_PATH         SQLite file, or ":memory:" (default ledger.db)
  DATABASE_URL    PostgreSQL DSN (required when DB_DRIVER=postgres)
  JWT_SECRET      HMAC secret for bearer tokens (required)
  JWT_ISSUER      Token issuer (default consult-ledger)
  JWT_TTL         Token lifetime for cmd/devtoken (default 24h)
  LOG_LEVEL       debug | info | warn | error (default info)
  LOG_DEV         true for console logs instead of JSON
  CORS_ORIGINS    Comma-separated allowed origins
  SEED_SCENARIO   Demo scenario to load on startup
  ENABLE_SCENARIOS  true to mount /api/scenarios (reset and load wipe the
                    store; never enable in production)

SEE ALSO:
  - cmd/server/main.go: Flags override PORT, DB_PATH and DB_DRIVER
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Log      LogConfig

	// SeedScenario is loaded after startup when set.
	SeedScenario string
}

type ServerConfig struct {
	Port         int
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// EnableScenarios mounts the unauthenticated demo scenario routes.
	EnableScenarios bool
}

type DatabaseConfig struct {
	Driver string
	Path   string
	URL    string
}

type JWTConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

type LogConfig struct {
	Level       string
	Development bool
}

// Load reads .env (if any) and the environment.
func Load() (*Config, error) {
	// Missing .env is normal outside local development.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	port, err := envInt("PORT", 8080)
	if err != nil {
		return nil, err
	}
	ttl, err := envDuration("JWT_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Port:            port,
			CORSOrigins:     envList("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:8080"}),
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			EnableScenarios: envBool("ENABLE_SCENARIOS"),
		},
		Database: DatabaseConfig{
			Driver: env("DB_DRIVER", DriverSQLite),
			Path:   env("DB_PATH", "ledger.db"),
			URL:    os.Getenv("DATABASE_URL"),
		},
		JWT: JWTConfig{
			Secret: os.Getenv("JWT_SECRET"),
			Issuer: env("JWT_ISSUER", "consult-ledger"),
			TTL:    ttl,
		},
		Log: LogConfig{
			Level:       env("LOG_LEVEL", "info"),
			Development: envBool("LOG_DEV"),
		},
		SeedScenario: os.Getenv("SEED_SCENARIO"),
	}, nil
}

// Validate reports the first setting that would stop the server from
// working.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", c.Server.Port)
	}
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("config: DB_PATH is required for sqlite")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for postgres")
		}
	default:
		return fmt.Errorf("config: unknown DB_DRIVER %q", c.Database.Driver)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("config: JWT_SECRET is required")
	}
	if c.JWT.TTL <= 0 {
		return fmt.Errorf("config: JWT_TTL must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown LOG_LEVEL %q", c.Log.Level)
	}
	return nil
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
