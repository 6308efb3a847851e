package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		// Get tags
		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		// Try primary env var, then alternate
		value := os.Getenv(envName)
		if value == "" && envAlt != "" {
			value = os.Getenv(envAlt)
		}

		// Apply default if not set
		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		shown := strconv.Quote(value)
		if field.Tag.Get("secret") == "true" {
			shown = "[MASKED]"
		}
		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%s: %w", envName, shown, err)
		}
		if msg := checkTags(field, fieldVal); msg != "" {
			return fmt.Errorf("invalid value for %s=%s: %s", envName, shown, msg)
		}
	}

	return nil
}

// checkTags applies the oneof and hex constraints of a string field.
// oneof lists the accepted values, compared case-insensitively; hex is the
// decoded byte length of a hex-encoded value such as the 3DES key.
func checkTags(field reflect.StructField, v reflect.Value) string {
	if v.Kind() != reflect.String {
		return ""
	}
	value := v.String()

	if oneof := field.Tag.Get("oneof"); oneof != "" {
		allowed := strings.Split(oneof, ",")
		found := false
		for _, a := range allowed {
			if strings.EqualFold(value, a) {
				found = true
				break
			}
		}
		if !found {
			return "must be one of: " + strings.Join(allowed, ", ")
		}
	}

	if size := field.Tag.Get("hex"); size != "" {
		n, err := strconv.Atoi(size)
		if err != nil {
			return fmt.Sprintf("bad hex tag %q", size)
		}
		b, err := hex.DecodeString(value)
		if err != nil {
			return "must be hex encoded"
		}
		if len(b) != n {
			return fmt.Sprintf("must be %d hex characters (%d bytes), got %d bytes", n*2, n, len(b))
		}
	}

	return ""
}

// tagErrors walks v and reports every field whose value breaks its tags,
// prefixed with the field's environment variable.
func tagErrors(v reflect.Value) []string {
	var errs []string
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)
		if !fieldVal.CanInterface() {
			continue
		}
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			errs = append(errs, tagErrors(fieldVal)...)
			continue
		}
		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}
		if msg := checkTags(field, fieldVal); msg != "" {
			if field.Tag.Get("secret") == "true" {
				errs = append(errs, envName+" "+msg)
			} else {
				errs = append(errs, fmt.Sprintf("%s (%q) %s", envName, fieldVal.String(), msg))
			}
		}
	}
	return errs
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			// Split comma-separated values, trim whitespace
			parts := strings.Split(value, ",")
			result := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					result = append(result, p)
				}
			}
			field.Set(reflect.ValueOf(result))
		} else {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.Enabled() {
		if c.Database.MaxConns < c.Database.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Database.MaxConns, c.Database.MinConns))
		}
		if c.Database.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Database.MinConns < 0 {
			errs = append(errs, "DB_MIN_CONNS must be non-negative")
		}
		if c.Database.FixturesFile != "" {
			errs = append(errs, "DB_FIXTURES_FILE only applies to the in-memory store; unset DATABASE_URL or DB_FIXTURES_FILE")
		}
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Export validation
	if c.Export.OutputDir == "" {
		errs = append(errs, "EXPORT_OUTPUT_DIR is required")
	}
	if c.Export.MaxConcurrent <= 0 {
		errs = append(errs, "EXPORT_MAX_CONCURRENT must be positive")
	}
	if c.Export.MaxWaitTime <= 0 {
		errs = append(errs, "EXPORT_MAX_WAIT_TIME must be positive")
	}

	// Catalog validation
	if strings.EqualFold(c.Catalog.Source, "postgres") && c.Catalog.Enabled && !c.Database.Enabled() {
		errs = append(errs, "CATALOG_SOURCE=postgres requires DATABASE_URL")
	}
	if c.Redis.Enabled() && c.Catalog.CacheTTL <= 0 {
		errs = append(errs, "CATALOG_CACHE_TTL must be positive when REDIS_ADDR is set")
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}

	// Sweep validation
	if c.Sweep.MaxAge <= 0 {
		errs = append(errs, "SWEEP_MAX_AGE must be positive")
	}
	if c.Sweep.CheckInterval <= 0 {
		errs = append(errs, "SWEEP_CHECK_INTERVAL must be positive")
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Key size, catalog source and log settings come from field tags
	errs = append(errs, tagErrors(reflect.ValueOf(c).Elem())...)

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs and the encryption key are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	if c.Database.Enabled() {
		b.WriteString(fmt.Sprintf("Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
			c.Database.MaxConns, c.Database.MinConns))
	} else {
		b.WriteString("Database: {memory}, ")
	}
	b.WriteString(fmt.Sprintf("Redis: {Enabled: %v}, ", c.Redis.Enabled()))
	b.WriteString(fmt.Sprintf("Export: {OutputDir: %q, Key: [MASKED], MaxConcurrent: %d}, ",
		c.Export.OutputDir, c.Export.MaxConcurrent))
	b.WriteString(fmt.Sprintf("Catalog: {Enabled: %v, Source: %q}, ", c.Catalog.Enabled, c.Catalog.Source))
	b.WriteString(fmt.Sprintf("Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
