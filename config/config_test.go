package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "DB_DRIVER", "DB_PATH", "DATABASE_URL", "JWT_SECRET", "JWT_ISSUER",
		"JWT_TTL", "LOG_LEVEL", "LOG_DEV", "CORS_ORIGINS", "SEED_SCENARIO",
		"ENABLE_SCENARIOS",
	} {
		t.Setenv(key, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "ledger.db", cfg.Database.Path)
	assert.Equal(t, "consult-ledger", cfg.JWT.Issuer)
	assert.Equal(t, 24*time.Hour, cfg.JWT.TTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Log.Development)
	assert.False(t, cfg.Server.EnableScenarios)

	// No secret yet
	assert.Error(t, cfg.Validate())
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/ledger")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("JWT_TTL", "90m")
	t.Setenv("LOG_DEV", "true")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("ENABLE_SCENARIOS", "true")

	cfg, err := FromEnv()

	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 90*time.Minute, cfg.JWT.TTL)
	assert.True(t, cfg.Log.Development)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Server.EnableScenarios)
}

func TestFromEnv_BadNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "eighty")
	_, err := FromEnv()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("JWT_TTL", "forever")
	_, err = FromEnv()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Driver: DriverSQLite, Path: ":memory:"},
			JWT:      JWTConfig{Secret: "x", TTL: time.Hour},
			Log:      LogConfig{Level: "debug"},
		}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(*Config){
		"port":             func(c *Config) { c.Server.Port = 0 },
		"driver":           func(c *Config) { c.Database.Driver = "mysql" },
		"postgres no url":  func(c *Config) { c.Database.Driver = DriverPostgres },
		"sqlite no path":   func(c *Config) { c.Database.Path = "" },
		"no secret":        func(c *Config) { c.JWT.Secret = "" },
		"zero ttl":         func(c *Config) { c.JWT.TTL = 0 },
		"unknown loglevel": func(c *Config) { c.Log.Level = "trace" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoad_ReadsDotEnvWithoutOverriding(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, godotenv.Write(map[string]string{
		"JWT_SECRET":    "from-file",
		"SEED_SCENARIO": "paid-booking",
	}, filepath.Join(dir, ".env")))
	t.Setenv("SEED_SCENARIO", "monthly-revenue")
	// Setenv to "" still counts as set for godotenv, so drop it.
	require.NoError(t, os.Unsetenv("JWT_SECRET"))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		os.Chdir(wd)
		os.Unsetenv("JWT_SECRET")
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.JWT.Secret)
	assert.Equal(t, "monthly-revenue", cfg.SeedScenario)
}
