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
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "5000", cfg.HTTP.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "memory", cfg.Broadcast.Backend)
	assert.Equal(t, 256, cfg.Broadcast.Backlog)
	assert.Equal(t, "America/New_York", cfg.Library.Timezone)
	assert.Equal(t, -4, cfg.Library.FallbackUTCOffsetHours)
	assert.Equal(t, 12*time.Hour, cfg.JWT.AccessTTL)
	assert.Equal(t, 120, cfg.RateLimit.PerMin)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("APP_ENV", "production")
	t.Setenv("HTTP_PORT", "8088")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/library")
	t.Setenv("AUTH_VIEW_TOKEN", "s3cret")
	t.Setenv("JWT_ACCESS_TTL", "30m")
	t.Setenv("RATE_LIMIT_PER_MIN", "10")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "8088", cfg.HTTP.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://u:p@db:5432/library", cfg.Database.URL)
	assert.Equal(t, "s3cret", cfg.Auth.ViewToken)
	assert.Equal(t, 30*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 10, cfg.RateLimit.PerMin)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "library.yaml")
	yaml := "library:\n  seed_file: /data/students.xlsx\n  sweep_at: \"12:30\"\nbroadcast:\n  backend: redis\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/students.xlsx", cfg.Library.SeedFile)
	assert.Equal(t, "12:30", cfg.Library.SweepAt)
	assert.Equal(t, "redis", cfg.Broadcast.Backend)
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())
	base, err := Load("")
	require.NoError(t, err)

	cases := map[string]func(*App){
		"empty view token":  func(c *App) { c.Auth.ViewToken = "" },
		"short signing key": func(c *App) { c.JWT.SigningKey = "short" },
		"unknown driver":    func(c *App) { c.Database.Driver = "mysql" },
		"unknown backend":   func(c *App) { c.Broadcast.Backend = "kafka" },
		"bad sweep time":    func(c *App) { c.Library.SweepAt = "1pm" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("13:05")
	require.NoError(t, err)
	assert.Equal(t, 13, h)
	assert.Equal(t, 5, m)

	_, _, err = ParseClock("25:00")
	assert.Error(t, err)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
