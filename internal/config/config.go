// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"encoding/hex"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Export   ExportConfig
	Catalog  CatalogConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Sweep    SweepConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 2m)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"2m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 2m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"2m"`
}

// DatabaseConfig holds database connection settings. An empty URL selects
// the in-memory stores.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// Migrate applies the embedded schema on startup (default: true)
	Migrate bool `env:"DB_MIGRATE" default:"true"`

	// FixturesFile seeds the in-memory store from a YAML file when set.
	FixturesFile string `env:"DB_FIXTURES_FILE"`
}

// Enabled reports whether a PostgreSQL database is configured.
func (c *DatabaseConfig) Enabled() bool { return c.URL != "" }

// RedisConfig holds the optional catalog cache connection.
type RedisConfig struct {
	// Addr is host:port of the Redis server; empty disables the cache.
	Addr string `env:"REDIS_ADDR"`

	// Password for AUTH, if any.
	Password string `env:"REDIS_PASSWORD" secret:"true"`

	// DB is the logical database number (default: 0)
	DB int `env:"REDIS_DB" default:"0"`
}

// Enabled reports whether a Redis cache is configured.
func (c *RedisConfig) Enabled() bool { return c.Addr != "" }

// ExportConfig holds artifact generation and sealing settings.
type ExportConfig struct {
	// OutputDir is the root for generated artifacts (default: ./exports)
	OutputDir string `env:"EXPORT_OUTPUT_DIR" default:"./exports"`

	// EncryptionKey is the 3DES key as 48 hex characters (required)
	EncryptionKey string `env:"EXPORT_ENCRYPTION_KEY" required:"true" hex:"24" secret:"true"`

	// MaxConcurrent is the maximum number of parallel guide generations (default: 4)
	MaxConcurrent int `env:"EXPORT_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for a generation slot (default: 30s)
	MaxWaitTime time.Duration `env:"EXPORT_MAX_WAIT_TIME" default:"30s"`

	// SchemaDir overrides the embedded guide schemas when set.
	SchemaDir string `env:"EXPORT_SCHEMA_DIR"`
}

// Key decodes EncryptionKey.
func (c *ExportConfig) Key() ([]byte, error) {
	return hex.DecodeString(c.EncryptionKey)
}

// CatalogConfig holds reference catalog settings.
type CatalogConfig struct {
	// Enabled turns catalog checks on (default: true)
	Enabled bool `env:"CATALOG_ENABLED" default:"true"`

	// Source is static or postgres (default: static)
	Source string `env:"CATALOG_SOURCE" default:"static" oneof:"static,postgres"`

	// File replaces the embedded static catalog when set.
	File string `env:"CATALOG_FILE"`

	// CacheTTL is how long Redis keeps a lookup result (default: 1h)
	CacheTTL time.Duration `env:"CATALOG_CACHE_TTL" default:"1h"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enables X-API-Key authentication on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info" oneof:"debug,info,warn,error"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text" oneof:"text,json"`
}

// SweepConfig holds temp-file sweeper settings.
type SweepConfig struct {
	// MaxAge is the age after which a partial write is removed (default: 1h)
	MaxAge time.Duration `env:"SWEEP_MAX_AGE" default:"1h"`

	// CheckInterval is how often the sweeper runs (default: 15m)
	CheckInterval time.Duration `env:"SWEEP_CHECK_INTERVAL" default:"15m"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
