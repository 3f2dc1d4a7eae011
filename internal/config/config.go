// Package config provides application configuration loading from environment variables and .env files.
// It uses viper for flexible configuration management with sensible defaults.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration loaded from environment variables or .env file.
// Configuration priority: environment variables > .env file > defaults.
type Config struct {
	AppEnv      string // Application environment (dev, staging, prod)
	HTTPAddr    string // HTTP server bind address (e.g., ":8080")
	MetricsAddr string // Metrics server bind address
	AdminAPIKey string // Bearer key for management writes

	StoreType   string // Definition store: memory, postgres or sqlite
	DatabaseDSN string // PostgreSQL connection string
	SQLitePath  string // SQLite database file

	StateStore      string        // Empty keeps state in the definition store; "redis" moves it to Redis
	RedisAddr       string        // Redis address for the state store and distributed lock
	RedisPassword   string        // Redis password
	RedisDB         int           // Redis logical database
	RedisPrefix     string        // Key prefix for every Redis key
	RedisStateTTL   time.Duration // Idle expiry of Redis state documents, zero keeps them
	DistributedLock bool          // Take a Redis lock per scenario in addition to the in-process one
	LockTTL         time.Duration // Expiry of an unreleased distributed lock

	LogLevel       string        // zerolog level
	LogFormat      string        // json or console
	RateLimitPerIP int           // Dispatch requests per minute per client IP, zero disables
	RequestTimeout time.Duration // Per-request deadline

	SeedFile  string // Optional YAML catalog applied at startup
	SeedWatch bool   // Re-apply the seed file when it changes

	AuditEnabled bool // Record management writes and auth failures
	AuditHistory int  // Events kept in memory for GET /v1/audit

	WebhookURLs       []string      // Callback URLs notified of state changes
	WebhookSecret     string        // HMAC key for the X-Mockflow-Signature header
	WebhookEvents     []string      // Event types to send, empty sends all
	WebhookTimeout    time.Duration // Per-attempt delivery timeout
	WebhookMaxRetries int           // Retries after the first failed attempt

	OTLPEndpoint string // OTLP/HTTP trace endpoint, empty disables tracing
	ServiceName  string // service.name resource attribute
}

// Load reads configuration from environment variables and .env file (if present).
// Environment variables take precedence over .env file values.
//
// Load does not validate; call Validate at startup.
func Load() (*Config, error) {
	viperInstance := viper.New()
	viperInstance.SetConfigFile(".env") // Optional; silently ignored if file doesn't exist
	_ = viperInstance.ReadInConfig()    // Ignore error - .env is optional
	viperInstance.AutomaticEnv()        // Read from environment variables

	setConfigDefaults(viperInstance)

	return &Config{
		AppEnv:            viperInstance.GetString("APP_ENV"),
		HTTPAddr:          viperInstance.GetString("APP_HTTP_ADDR"),
		MetricsAddr:       viperInstance.GetString("METRICS_ADDR"),
		AdminAPIKey:       viperInstance.GetString("ADMIN_API_KEY"),
		StoreType:         viperInstance.GetString("STORE_TYPE"),
		DatabaseDSN:       viperInstance.GetString("DB_DSN"),
		SQLitePath:        viperInstance.GetString("SQLITE_PATH"),
		StateStore:        viperInstance.GetString("STATE_STORE"),
		RedisAddr:         viperInstance.GetString("REDIS_ADDR"),
		RedisPassword:     viperInstance.GetString("REDIS_PASSWORD"),
		RedisDB:           viperInstance.GetInt("REDIS_DB"),
		RedisPrefix:       viperInstance.GetString("REDIS_PREFIX"),
		RedisStateTTL:     viperInstance.GetDuration("REDIS_STATE_TTL"),
		DistributedLock:   viperInstance.GetBool("DISTRIBUTED_LOCK"),
		LockTTL:           viperInstance.GetDuration("LOCK_TTL"),
		LogLevel:          viperInstance.GetString("LOG_LEVEL"),
		LogFormat:         viperInstance.GetString("LOG_FORMAT"),
		RateLimitPerIP:    viperInstance.GetInt("RATE_LIMIT_PER_IP"),
		RequestTimeout:    viperInstance.GetDuration("REQUEST_TIMEOUT"),
		SeedFile:          viperInstance.GetString("SEED_FILE"),
		SeedWatch:         viperInstance.GetBool("SEED_WATCH"),
		AuditEnabled:      viperInstance.GetBool("AUDIT_ENABLED"),
		AuditHistory:      viperInstance.GetInt("AUDIT_HISTORY"),
		WebhookURLs:       splitList(viperInstance.GetString("WEBHOOK_URLS")),
		WebhookSecret:     viperInstance.GetString("WEBHOOK_SECRET"),
		WebhookEvents:     splitList(viperInstance.GetString("WEBHOOK_EVENTS")),
		WebhookTimeout:    viperInstance.GetDuration("WEBHOOK_TIMEOUT"),
		WebhookMaxRetries: viperInstance.GetInt("WEBHOOK_MAX_RETRIES"),
		OTLPEndpoint:      viperInstance.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:       viperInstance.GetString("OTEL_SERVICE_NAME"),
	}, nil
}

// setConfigDefaults sets default values for all configuration options.
// These defaults are suitable for local development but should be overridden in production.
func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "dev")
	v.SetDefault("APP_HTTP_ADDR", ":8080")
	v.SetDefault("METRICS_ADDR", ":9090")
	v.SetDefault("ADMIN_API_KEY", "admin-123") // Change in production!
	v.SetDefault("STORE_TYPE", "memory")
	v.SetDefault("DB_DSN", "")
	v.SetDefault("SQLITE_PATH", "mockflow.db")
	v.SetDefault("STATE_STORE", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PREFIX", "mockflow:")
	v.SetDefault("REDIS_STATE_TTL", "0s")
	v.SetDefault("DISTRIBUTED_LOCK", false)
	v.SetDefault("LOCK_TTL", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("RATE_LIMIT_PER_IP", 100)
	v.SetDefault("REQUEST_TIMEOUT", "5s")
	v.SetDefault("SEED_FILE", "")
	v.SetDefault("SEED_WATCH", false)
	v.SetDefault("AUDIT_ENABLED", true)
	v.SetDefault("AUDIT_HISTORY", 200)
	v.SetDefault("WEBHOOK_URLS", "")
	v.SetDefault("WEBHOOK_SECRET", "")
	v.SetDefault("WEBHOOK_EVENTS", "")
	v.SetDefault("WEBHOOK_TIMEOUT", "5s")
	v.SetDefault("WEBHOOK_MAX_RETRIES", 3)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_SERVICE_NAME", "mockflow")
}

// splitList parses a comma-separated value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// UsesRedis reports whether any component needs a Redis client.
func (c *Config) UsesRedis() bool {
	return c.StateStore == "redis" || c.DistributedLock
}

// ValidationError represents a configuration validation error with details about what failed.
type ValidationError struct {
	Field   string // Name of the configuration field
	Message string // Human-readable error message
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed [%s]: %s", e.Field, e.Message)
}

// Validate checks that the configuration is usable and returns the first
// violation as a ValidationError.
//
// Validation Rules:
//  1. StoreType must be one of: "memory", "postgres", "sqlite"
//  2. postgres needs DB_DSN, sqlite needs SQLITE_PATH
//  3. StateStore must be empty or "redis"
//  4. REDIS_ADDR is required when Redis is used
//  5. HTTPAddr and MetricsAddr must be non-empty
//  6. RequestTimeout must be positive, RateLimitPerIP non-negative
//  7. SEED_WATCH requires SEED_FILE
//  8. AuditHistory must be positive when auditing is enabled
//  9. Webhook URLs must be absolute http(s) URLs with a secret, a positive
//     timeout and non-negative retries
//
// In production (APP_ENV prod or production) the default admin key is rejected.
func (c *Config) Validate() error {
	switch c.StoreType {
	case "memory", "postgres", "sqlite":
	default:
		return ValidationError{
			Field:   "STORE_TYPE",
			Message: fmt.Sprintf("must be 'memory', 'postgres' or 'sqlite', got '%s'", c.StoreType),
		}
	}

	if c.StoreType == "postgres" && c.DatabaseDSN == "" {
		return ValidationError{
			Field:   "DB_DSN",
			Message: "database DSN is required when STORE_TYPE=postgres",
		}
	}
	if c.StoreType == "sqlite" && c.SQLitePath == "" {
		return ValidationError{
			Field:   "SQLITE_PATH",
			Message: "database file is required when STORE_TYPE=sqlite",
		}
	}

	if c.StateStore != "" && c.StateStore != "redis" {
		return ValidationError{
			Field:   "STATE_STORE",
			Message: fmt.Sprintf("must be empty or 'redis', got '%s'", c.StateStore),
		}
	}
	if c.UsesRedis() && c.RedisAddr == "" {
		return ValidationError{
			Field:   "REDIS_ADDR",
			Message: "redis address is required when STATE_STORE=redis or DISTRIBUTED_LOCK=true",
		}
	}

	if c.HTTPAddr == "" {
		return ValidationError{
			Field:   "APP_HTTP_ADDR",
			Message: "HTTP server address cannot be empty",
		}
	}
	if c.MetricsAddr == "" {
		return ValidationError{
			Field:   "METRICS_ADDR",
			Message: "metrics server address cannot be empty",
		}
	}

	if c.RequestTimeout <= 0 {
		return ValidationError{
			Field:   "REQUEST_TIMEOUT",
			Message: "request timeout must be positive",
		}
	}
	if c.RateLimitPerIP < 0 {
		return ValidationError{
			Field:   "RATE_LIMIT_PER_IP",
			Message: "rate limit cannot be negative",
		}
	}

	if c.SeedWatch && c.SeedFile == "" {
		return ValidationError{
			Field:   "SEED_WATCH",
			Message: "SEED_FILE is required when SEED_WATCH=true",
		}
	}

	if c.AuditEnabled && c.AuditHistory <= 0 {
		return ValidationError{
			Field:   "AUDIT_HISTORY",
			Message: "audit history must be positive when AUDIT_ENABLED=true",
		}
	}

	if len(c.WebhookURLs) > 0 {
		if err := c.validateWebhooks(); err != nil {
			return err
		}
	}

	if c.AppEnv == "prod" || c.AppEnv == "production" {
		if c.AdminAPIKey == "admin-123" {
			return ValidationError{
				Field:   "ADMIN_API_KEY",
				Message: "default admin API key 'admin-123' is not allowed in production",
			}
		}
	}

	return nil
}

func (c *Config) validateWebhooks() error {
	for _, raw := range c.WebhookURLs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ValidationError{
				Field:   "WEBHOOK_URLS",
				Message: fmt.Sprintf("'%s' is not an absolute http(s) URL", raw),
			}
		}
	}
	if c.WebhookSecret == "" {
		return ValidationError{
			Field:   "WEBHOOK_SECRET",
			Message: "webhook secret is required when WEBHOOK_URLS is set",
		}
	}
	for _, e := range c.WebhookEvents {
		if e != "transition.applied" && e != "state.reset" {
			return ValidationError{
				Field:   "WEBHOOK_EVENTS",
				Message: fmt.Sprintf("unknown event '%s'", e),
			}
		}
	}
	if c.WebhookTimeout <= 0 {
		return ValidationError{
			Field:   "WEBHOOK_TIMEOUT",
			Message: "webhook timeout must be positive",
		}
	}
	if c.WebhookMaxRetries < 0 {
		return ValidationError{
			Field:   "WEBHOOK_MAX_RETRIES",
			Message: "webhook retries cannot be negative",
		}
	}
	return nil
}
