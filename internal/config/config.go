package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/terra-clan/duewatch/internal/catalog"
)

// Config holds all configuration for duewatch
type Config struct {
	API      APIConfig      `yaml:"api"`
	Session  SessionConfig  `yaml:"session"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// APIConfig describes the upstream course service
type APIConfig struct {
	BaseURL          string        `yaml:"base_url"`
	Timeout          time.Duration `yaml:"timeout"`
	AuthMaxAttempts  int           `yaml:"auth_max_attempts"`
	AuthRetryBackoff time.Duration `yaml:"auth_retry_backoff"`
	RateLimit        float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	FetchConcurrency int           `yaml:"fetch_concurrency"`
	CatalogOrder     string        `yaml:"catalog_order"`
	CatalogCacheTTL  time.Duration `yaml:"catalog_cache_ttl"`
	Timezone         string        `yaml:"timezone"`
}

// SessionConfig selects where the session token is persisted
type SessionConfig struct {
	Backend  string `yaml:"backend"` // memory, redis or bolt
	BoltPath string `yaml:"bolt_path"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// DatabaseConfig holds PostgreSQL configuration. An empty DSN keeps
// snapshots in memory.
type DatabaseConfig struct {
	DSN           string `yaml:"dsn"`
	Schema        string `yaml:"schema"`
	MigrationsDir string `yaml:"migrations_dir"`
	// Retention is how many snapshots are kept, in memory or in the database
	Retention     int    `yaml:"retention"`
}

// RefreshConfig holds refresh worker configuration
type RefreshConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ServerConfig holds local HTTP server configuration
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Session backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendBolt   = "bolt"
)

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:          "http://localhost:8000/api",
			Timeout:          30 * time.Second,
			AuthMaxAttempts:  2,
			AuthRetryBackoff: 500 * time.Millisecond,
			FetchConcurrency: 8,
			CatalogOrder:     catalog.NewestLast.String(),
			CatalogCacheTTL:  5 * time.Minute,
			Timezone:         "Local",
		},
		Session: SessionConfig{
			Backend:  BackendMemory,
			BoltPath: "./data/session.db",
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
			Prefix:  "duewatch:",
		},
		Database: DatabaseConfig{
			Schema:    "public",
			Retention: 10,
		},
		Refresh: RefreshConfig{
			Interval: 15 * time.Minute,
		},
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds configuration from, in increasing precedence: built-in
// defaults, the YAML file named by CONFIG_FILE, and environment variables
// (a .env file in the working directory is loaded into the environment
// first without overriding variables already set).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	slog.Debug("config file loaded", "path", path)
	return nil
}

func (c *Config) applyEnv() {
	c.API.BaseURL = getEnv("API_BASE_URL", c.API.BaseURL)
	c.API.Timeout = getEnvAsDuration("API_TIMEOUT", c.API.Timeout)
	c.API.AuthMaxAttempts = getEnvAsInt("AUTH_MAX_ATTEMPTS", c.API.AuthMaxAttempts)
	c.API.AuthRetryBackoff = getEnvAsDuration("AUTH_RETRY_BACKOFF", c.API.AuthRetryBackoff)
	c.API.RateLimit = getEnvAsFloat("API_RATE_LIMIT", c.API.RateLimit)
	c.API.FetchConcurrency = getEnvAsInt("FETCH_CONCURRENCY", c.API.FetchConcurrency)
	c.API.CatalogOrder = getEnv("CATALOG_ORDER", c.API.CatalogOrder)
	c.API.CatalogCacheTTL = getEnvAsDuration("CATALOG_CACHE_TTL", c.API.CatalogCacheTTL)
	c.API.Timezone = getEnv("TIMEZONE", c.API.Timezone)

	c.Session.Backend = getEnv("SESSION_BACKEND", c.Session.Backend)
	c.Session.BoltPath = getEnv("BOLT_PATH", c.Session.BoltPath)

	c.Redis.Address = getEnv("REDIS_ADDRESS", c.Redis.Address)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvAsInt("REDIS_DB", c.Redis.DB)
	c.Redis.Prefix = getEnv("REDIS_PREFIX", c.Redis.Prefix)

	c.Database.DSN = getEnv("DATABASE_DSN", c.Database.DSN)
	c.Database.Schema = getEnv("DATABASE_SCHEMA", c.Database.Schema)
	c.Database.MigrationsDir = getEnv("DATABASE_MIGRATIONS_DIR", c.Database.MigrationsDir)
	c.Database.Retention = getEnvAsInt("SNAPSHOT_RETENTION", c.Database.Retention)

	c.Refresh.Interval = getEnvAsDuration("REFRESH_INTERVAL", c.Refresh.Interval)

	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsInt("SERVER_PORT", c.Server.Port)
	c.Server.AllowedOrigins = getEnvAsSlice("CORS_ALLOWED_ORIGINS", c.Server.AllowedOrigins)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Retention < 1 {
		return fmt.Errorf("invalid snapshot retention: %d", c.Database.Retention)
	}
	for _, o := range c.Server.AllowedOrigins {
		if o == "*" {
			return errors.New("wildcard CORS origin is not allowed, list origins explicitly")
		}
	}

	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid API base URL: %q", c.API.BaseURL)
	}

	if c.API.AuthMaxAttempts < 1 {
		return fmt.Errorf("auth max attempts must be at least 1, got %d", c.API.AuthMaxAttempts)
	}

	if c.API.FetchConcurrency < 0 {
		return fmt.Errorf("invalid fetch concurrency: %d", c.API.FetchConcurrency)
	}

	if c.API.RateLimit < 0 {
		return fmt.Errorf("invalid rate limit: %v", c.API.RateLimit)
	}

	if _, err := catalog.ParseOrder(c.API.CatalogOrder); err != nil {
		return err
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	switch c.Session.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Address == "" {
			return fmt.Errorf("redis address is required for the redis session backend")
		}
	case BackendBolt:
		if c.Session.BoltPath == "" {
			return fmt.Errorf("bolt path is required for the bolt session backend")
		}
	default:
		return fmt.Errorf("unknown session backend: %q", c.Session.Backend)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}

	return nil
}

// Location resolves the configured timezone
func (c *Config) Location() (*time.Location, error) {
	if c.API.Timezone == "" || strings.EqualFold(c.API.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.API.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.API.Timezone, err)
	}
	return loc, nil
}

// SlogLevel parses the configured log level
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", l.Level)
	}
	return level, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
