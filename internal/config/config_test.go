package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafsii/sqlkv/pkg/kv"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // keep a developer .env out of the test

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 15*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "sqlkv.db", cfg.Store.DSN)
	assert.Equal(t, "kv", cfg.Store.Table)
	assert.Equal(t, 0.1, cfg.Store.ReapThreshold)
	assert.True(t, cfg.Store.AutoMigrate)
	assert.Equal(t, 600, cfg.Security.RateLimitRPM)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Security.CORSAllowedOrigins)
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SQLKV_ENV", "prod")
	t.Setenv("SQLKV_DRIVER", "postgres")
	t.Setenv("SQLKV_DSN", "postgres://kv@localhost/kv")
	t.Setenv("SQLKV_TABLE", "sessions")
	t.Setenv("SQLKV_REAP_THRESHOLD", "0")
	t.Setenv("SQLKV_AUTO_MIGRATE", "false")
	t.Setenv("SQLKV_REQUEST_TIMEOUT", "2s")
	t.Setenv("SQLKV_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProd())
	assert.Equal(t, 2*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.CORSAllowedOrigins)

	kc := cfg.KV(nil)
	assert.Equal(t, kv.DriverPostgres, kc.Driver)
	assert.Equal(t, "sessions", kc.Table)
	assert.False(t, kc.AutoMigrate)
	require.NotNil(t, kc.ReapThreshold)
	assert.Equal(t, 0.0, *kc.ReapThreshold)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"env":       {"SQLKV_ENV": "staging"},
		"driver":    {"SQLKV_DRIVER": "redis"},
		"table":     {"SQLKV_TABLE": `a"b`},
		"threshold": {"SQLKV_REAP_THRESHOLD": "1.5"},
		"timeout":   {"SQLKV_REQUEST_TIMEOUT": "0s"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestMemoryDriverNeedsNoDSN(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SQLKV_DRIVER", "memory")
	t.Setenv("SQLKV_DSN", "")

	_, err := Load()
	assert.NoError(t, err)
}

func TestDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SQLKV_TABLE=from_dotenv\n"), 0o600))
	t.Setenv("SQLKV_TABLE", "") // restores the variable gotenv sets
	require.NoError(t, os.Unsetenv("SQLKV_TABLE"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from_dotenv", cfg.Store.Table)
}
