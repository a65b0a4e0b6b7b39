// Package config provides configuration management for the catalog API server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Default configuration values.
const (
	DefaultServerPort      = 3001
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMetricsEnabled  = true
	DefaultEnvironment     = "production"
	DefaultDataPath        = "data/items.json"
	DefaultStoreBackend    = "json"
	DefaultCacheBackend    = "none"
	DefaultRedisAddr       = "localhost:6379"
	DefaultCacheTTL        = time.Hour
	DefaultCORSOrigins     = "http://localhost:3000"
	DefaultMaxBodyBytes    = 10 * 1024
	DefaultSortLocale      = "en"
)

// Environment variable names.
const (
	EnvServerPort      = "APP_SERVER_PORT"
	EnvLogLevel        = "APP_LOG_LEVEL"
	EnvShutdownTimeout = "APP_SHUTDOWN_TIMEOUT"
	EnvMetricsEnabled  = "APP_METRICS_ENABLED"
	EnvEnvironment     = "APP_ENV"
	EnvDataPath        = "APP_DATA_PATH"
	EnvStoreBackend    = "APP_STORE_BACKEND"
	EnvFileLockEnabled = "APP_FILE_LOCK_ENABLED"
	EnvCacheBackend    = "APP_CACHE_BACKEND"
	EnvRedisAddr       = "APP_REDIS_ADDR"
	EnvRedisPassword   = "APP_REDIS_PASSWORD" //nolint:gosec // env var name, not a credential
	EnvRedisDB         = "APP_REDIS_DB"
	EnvCacheTTL        = "APP_CACHE_TTL"
	EnvCORSOrigins     = "APP_CORS_ORIGINS"
	EnvMaxBodyBytes    = "APP_MAX_BODY_BYTES"
	EnvSortLocale      = "APP_SORT_LOCALE"
)

// Config holds the application configuration.
type Config struct {
	// Server settings.
	ServerPort      int
	LogLevel        string
	ShutdownTimeout time.Duration
	MetricsEnabled  bool
	Environment     string // production or development.
	CORSOrigins     []string
	MaxBodyBytes    int64

	// Storage settings.
	DataPath        string
	StoreBackend    string // json or memory.
	FileLockEnabled bool

	// Cache settings.
	CacheBackend  string // none, memory or redis.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Query settings.
	SortLocale string
}

// Validation errors.
var (
	ErrInvalidServerPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidLogLevel        = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidEnvironment     = errors.New("environment must be one of: production, development")
	ErrInvalidMaxBodyBytes    = errors.New("max body bytes must be positive")
	ErrInvalidDataPath        = errors.New("data path must be set when store backend is json")
	ErrInvalidStoreBackend    = errors.New("store backend must be one of: json, memory")
	ErrInvalidCacheBackend    = errors.New("cache backend must be one of: none, memory, redis")
	ErrInvalidRedisAddr       = errors.New("redis address must be set when cache backend is redis")
	ErrInvalidRedisDB         = errors.New("redis db must not be negative")
	ErrInvalidCacheTTL        = errors.New("cache TTL must be positive")
	ErrInvalidSortLocale      = errors.New("sort locale must be a valid BCP 47 language tag")
)

// Load reads configuration from environment variables with defaults.
// Environment variables have priority over default values.
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:      DefaultServerPort,
		LogLevel:        DefaultLogLevel,
		ShutdownTimeout: DefaultShutdownTimeout,
		MetricsEnabled:  DefaultMetricsEnabled,
		Environment:     DefaultEnvironment,
		CORSOrigins:     splitList(DefaultCORSOrigins),
		MaxBodyBytes:    DefaultMaxBodyBytes,
		DataPath:        DefaultDataPath,
		StoreBackend:    DefaultStoreBackend,
		CacheBackend:    DefaultCacheBackend,
		RedisAddr:       DefaultRedisAddr,
		CacheTTL:        DefaultCacheTTL,
		SortLocale:      DefaultSortLocale,
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFromEnv loads configuration values from environment variables.
func (c *Config) loadFromEnv() error {
	if err := c.loadServerEnv(); err != nil {
		return err
	}

	if err := c.loadStoreEnv(); err != nil {
		return err
	}

	if err := c.loadCacheEnv(); err != nil {
		return err
	}

	return nil
}

// loadServerEnv loads server-related environment variables.
func (c *Config) loadServerEnv() error {
	if val := os.Getenv(EnvServerPort); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvServerPort, err)
		}
		c.ServerPort = port
	}

	if val := os.Getenv(EnvLogLevel); val != "" {
		c.LogLevel = val
	}

	if val := os.Getenv(EnvShutdownTimeout); val != "" {
		timeout, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvShutdownTimeout, err)
		}
		c.ShutdownTimeout = timeout
	}

	if val := os.Getenv(EnvMetricsEnabled); val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvMetricsEnabled, err)
		}
		c.MetricsEnabled = enabled
	}

	if val := os.Getenv(EnvEnvironment); val != "" {
		c.Environment = val
	}

	if val := os.Getenv(EnvCORSOrigins); val != "" {
		c.CORSOrigins = splitList(val)
	}

	if val := os.Getenv(EnvMaxBodyBytes); val != "" {
		size, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvMaxBodyBytes, err)
		}
		c.MaxBodyBytes = size
	}

	if val := os.Getenv(EnvSortLocale); val != "" {
		c.SortLocale = val
	}

	return nil
}

// loadStoreEnv loads storage-related environment variables.
func (c *Config) loadStoreEnv() error {
	if val := os.Getenv(EnvDataPath); val != "" {
		c.DataPath = val
	}

	if val := os.Getenv(EnvStoreBackend); val != "" {
		c.StoreBackend = val
	}

	if val := os.Getenv(EnvFileLockEnabled); val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvFileLockEnabled, err)
		}
		c.FileLockEnabled = enabled
	}

	return nil
}

// loadCacheEnv loads cache-related environment variables.
func (c *Config) loadCacheEnv() error {
	if val := os.Getenv(EnvCacheBackend); val != "" {
		c.CacheBackend = val
	}

	if val := os.Getenv(EnvRedisAddr); val != "" {
		c.RedisAddr = val
	}

	if val := os.Getenv(EnvRedisPassword); val != "" {
		c.RedisPassword = val
	}

	if val := os.Getenv(EnvRedisDB); val != "" {
		db, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvRedisDB, err)
		}
		c.RedisDB = db
	}

	if val := os.Getenv(EnvCacheTTL); val != "" {
		ttl, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvCacheTTL, err)
		}
		c.CacheTTL = ttl
	}

	return nil
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateStore(); err != nil {
		return err
	}

	if err := c.validateCache(); err != nil {
		return err
	}

	return nil
}

// validateServer validates server-related configuration.
func (c *Config) validateServer() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidServerPort
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	if c.Environment != "production" && c.Environment != "development" {
		return ErrInvalidEnvironment
	}

	if c.MaxBodyBytes <= 0 {
		return ErrInvalidMaxBodyBytes
	}

	if _, err := language.Parse(c.SortLocale); err != nil {
		return ErrInvalidSortLocale
	}

	return nil
}

// validateStore validates storage configuration.
func (c *Config) validateStore() error {
	switch c.StoreBackend {
	case "json":
		if c.DataPath == "" {
			return ErrInvalidDataPath
		}
	case "memory":
	default:
		return ErrInvalidStoreBackend
	}

	return nil
}

// validateCache validates cache configuration.
func (c *Config) validateCache() error {
	switch c.CacheBackend {
	case "none", "memory":
	case "redis":
		if c.RedisAddr == "" {
			return ErrInvalidRedisAddr
		}
		if c.RedisDB < 0 {
			return ErrInvalidRedisDB
		}
	default:
		return ErrInvalidCacheBackend
	}

	if c.CacheEnabled() && c.CacheTTL <= 0 {
		return ErrInvalidCacheTTL
	}

	return nil
}

// CacheEnabled reports whether responses are cached.
func (c *Config) CacheEnabled() bool {
	return c.CacheBackend != "" && c.CacheBackend != "none"
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Language returns the collation language for sorting. Invalid tags fall
// back to English.
func (c *Config) Language() language.Tag {
	tag, err := language.Parse(c.SortLocale)
	if err != nil {
		return language.English
	}
	return tag
}

// LockPath returns the advisory lock file used alongside the data file.
func (c *Config) LockPath() string {
	return c.DataPath + ".lock"
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
