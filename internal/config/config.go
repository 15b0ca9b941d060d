package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/leafsii/sqlkv/pkg/kv"
)

type Config struct {
	Env      string `mapstructure:"SQLKV_ENV"`
	LogLevel string `mapstructure:"SQLKV_LOG_LEVEL"`

	HTTP     HTTPConfig     `mapstructure:",squash"`
	Store    StoreConfig    `mapstructure:",squash"`
	Security SecurityConfig `mapstructure:",squash"`
}

type HTTPConfig struct {
	Addr           string        `mapstructure:"SQLKV_HTTP_ADDR"`
	RequestTimeout time.Duration `mapstructure:"SQLKV_REQUEST_TIMEOUT"`
}

type StoreConfig struct {
	Driver        string  `mapstructure:"SQLKV_DRIVER"` // "sqlite", "memory", "postgres"
	DSN           string  `mapstructure:"SQLKV_DSN"`
	Table         string  `mapstructure:"SQLKV_TABLE"`
	ReapThreshold float64 `mapstructure:"SQLKV_REAP_THRESHOLD"`
	AutoMigrate   bool    `mapstructure:"SQLKV_AUTO_MIGRATE"`
}

type SecurityConfig struct {
	RateLimitRPM       int      `mapstructure:"SQLKV_RATE_LIMIT_RPM"`
	CORSAllowedOrigins []string `mapstructure:"SQLKV_CORS_ALLOWED_ORIGINS"`
}

func loadDotEnvFiles() {
	candidates := []string{
		".env",
		filepath.Join("..", ".env"),
	}

	seen := make(map[string]struct{})
	for _, path := range candidates {
		abs := path
		if !filepath.IsAbs(path) {
			if resolved, err := filepath.Abs(path); err == nil {
				abs = resolved
			}
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path) // ignore errors; env vars already set take precedence
		}
	}
}

func Load() (*Config, error) {
	loadDotEnvFiles()

	v := viper.New()
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("SQLKV_ENV", "dev")
	v.SetDefault("SQLKV_LOG_LEVEL", "")
	v.SetDefault("SQLKV_HTTP_ADDR", ":8080")
	v.SetDefault("SQLKV_REQUEST_TIMEOUT", "15s")
	v.SetDefault("SQLKV_DRIVER", string(kv.DriverSQLite))
	v.SetDefault("SQLKV_DSN", "sqlkv.db")
	v.SetDefault("SQLKV_TABLE", kv.DefaultTable)
	v.SetDefault("SQLKV_REAP_THRESHOLD", kv.DefaultReapThreshold)
	v.SetDefault("SQLKV_AUTO_MIGRATE", true)
	v.SetDefault("SQLKV_RATE_LIMIT_RPM", 600)
	v.SetDefault("SQLKV_CORS_ALLOWED_ORIGINS", "http://localhost:3000")

	// Handle array parsing for comma-separated values
	if origins := v.GetString("SQLKV_CORS_ALLOWED_ORIGINS"); origins != "" {
		v.Set("SQLKV_CORS_ALLOWED_ORIGINS", splitList(origins))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) validate() error {
	switch c.Env {
	case "dev", "test", "prod":
	default:
		return fmt.Errorf("invalid SQLKV_ENV %q (must be dev, test, or prod)", c.Env)
	}
	switch kv.Driver(c.Store.Driver) {
	case kv.DriverSQLite, kv.DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("SQLKV_DSN is required for driver %q", c.Store.Driver)
		}
	case kv.DriverMemory:
	default:
		return fmt.Errorf("invalid SQLKV_DRIVER %q (must be sqlite, memory, or postgres)", c.Store.Driver)
	}
	if err := kv.ValidateTable(c.Store.Table); err != nil {
		return fmt.Errorf("SQLKV_TABLE: %w", err)
	}
	if c.Store.ReapThreshold < 0 || c.Store.ReapThreshold > 1 {
		return fmt.Errorf("SQLKV_REAP_THRESHOLD must be between 0 and 1, got %v", c.Store.ReapThreshold)
	}
	if c.HTTP.RequestTimeout <= 0 {
		return fmt.Errorf("SQLKV_REQUEST_TIMEOUT must be positive")
	}
	if c.Security.RateLimitRPM < 0 {
		return fmt.Errorf("SQLKV_RATE_LIMIT_RPM must not be negative")
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

// KV returns the store configuration in the form kv.Open expects.
func (c *Config) KV(logger kv.LogFunc) kv.Config {
	threshold := c.Store.ReapThreshold
	return kv.Config{
		Driver:        kv.Driver(c.Store.Driver),
		DSN:           c.Store.DSN,
		Table:         c.Store.Table,
		ReapThreshold: &threshold,
		AutoMigrate:   c.Store.AutoMigrate,
		Logger:        logger,
	}
}
