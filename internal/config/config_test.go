package config

import (
	"errors"
	"testing"
	"time"
)

var allKeys = []string{
	"APP_ENV", "APP_HTTP_ADDR", "METRICS_ADDR", "ADMIN_API_KEY", "STORE_TYPE", "DB_DSN",
	"SQLITE_PATH", "STATE_STORE", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "REDIS_PREFIX",
	"REDIS_STATE_TTL", "DISTRIBUTED_LOCK", "LOCK_TTL", "LOG_LEVEL", "LOG_FORMAT",
	"RATE_LIMIT_PER_IP", "REQUEST_TIMEOUT", "SEED_FILE", "SEED_WATCH",
	"AUDIT_ENABLED", "AUDIT_HISTORY",
	"WEBHOOK_URLS", "WEBHOOK_SECRET", "WEBHOOK_EVENTS", "WEBHOOK_TIMEOUT", "WEBHOOK_MAX_RETRIES",
	"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SERVICE_NAME",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.AppEnv != "dev" {
		t.Errorf("Expected AppEnv='dev', got '%s'", cfg.AppEnv)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("Expected HTTPAddr=':8080', got '%s'", cfg.HTTPAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("Expected MetricsAddr=':9090', got '%s'", cfg.MetricsAddr)
	}
	if cfg.StoreType != "memory" {
		t.Errorf("Expected StoreType='memory', got '%s'", cfg.StoreType)
	}
	if cfg.RedisPrefix != "mockflow:" {
		t.Errorf("Expected RedisPrefix='mockflow:', got '%s'", cfg.RedisPrefix)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("Expected RequestTimeout=5s, got %s", cfg.RequestTimeout)
	}
	if cfg.LockTTL != 30*time.Second {
		t.Errorf("Expected LockTTL=30s, got %s", cfg.LockTTL)
	}
	if cfg.RateLimitPerIP != 100 {
		t.Errorf("Expected RateLimitPerIP=100, got %d", cfg.RateLimitPerIP)
	}
	if !cfg.AuditEnabled || cfg.AuditHistory != 200 {
		t.Errorf("Expected auditing on with history 200, got %t/%d", cfg.AuditEnabled, cfg.AuditHistory)
	}
	if len(cfg.WebhookURLs) != 0 || cfg.WebhookTimeout != 5*time.Second || cfg.WebhookMaxRetries != 3 {
		t.Errorf("unexpected webhook defaults: %v %s %d", cfg.WebhookURLs, cfg.WebhookTimeout, cfg.WebhookMaxRetries)
	}
	if cfg.ServiceName != "mockflow" {
		t.Errorf("Expected ServiceName='mockflow', got '%s'", cfg.ServiceName)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_HTTP_ADDR", ":9999")
	t.Setenv("STORE_TYPE", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/flows.db")
	t.Setenv("STATE_STORE", "redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_STATE_TTL", "1h")
	t.Setenv("DISTRIBUTED_LOCK", "true")
	t.Setenv("SEED_WATCH", "true")
	t.Setenv("SEED_FILE", "seed.yaml")
	t.Setenv("WEBHOOK_URLS", "https://a.example/hook, ,http://b.example/hook")
	t.Setenv("WEBHOOK_EVENTS", "state.reset")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.HTTPAddr != ":9999" || cfg.StoreType != "sqlite" || cfg.SQLitePath != "/tmp/flows.db" {
		t.Errorf("unexpected overrides: %+v", cfg)
	}
	if cfg.StateStore != "redis" || cfg.RedisDB != 3 || cfg.RedisStateTTL != time.Hour {
		t.Errorf("unexpected redis config: %+v", cfg)
	}
	if !cfg.DistributedLock || !cfg.SeedWatch || !cfg.UsesRedis() {
		t.Errorf("unexpected flags: %+v", cfg)
	}
	if len(cfg.WebhookURLs) != 2 || cfg.WebhookURLs[1] != "http://b.example/hook" {
		t.Errorf("WebhookURLs = %q", cfg.WebhookURLs)
	}
	if len(cfg.WebhookEvents) != 1 || cfg.WebhookEvents[0] != "state.reset" {
		t.Errorf("WebhookEvents = %q", cfg.WebhookEvents)
	}
}

func validConfig() *Config {
	return &Config{
		AppEnv:         "dev",
		HTTPAddr:       ":8080",
		MetricsAddr:    ":9090",
		AdminAPIKey:    "admin-123",
		StoreType:      "memory",
		RedisAddr:      "localhost:6379",
		RequestTimeout: 5 * time.Second,
		AuditEnabled:   true,
		AuditHistory:   200,
		WebhookTimeout: 5 * time.Second,
	}
}

func withWebhook(c *Config) {
	c.WebhookURLs = []string{"https://hooks.example/mockflow"}
	c.WebhookSecret = "whsec_test"
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown store", func(c *Config) { c.StoreType = "mongo" }, "STORE_TYPE"},
		{"postgres without dsn", func(c *Config) { c.StoreType = "postgres" }, "DB_DSN"},
		{"postgres with dsn", func(c *Config) { c.StoreType = "postgres"; c.DatabaseDSN = "postgres://x" }, ""},
		{"sqlite without path", func(c *Config) { c.StoreType = "sqlite" }, "SQLITE_PATH"},
		{"unknown state store", func(c *Config) { c.StateStore = "etcd" }, "STATE_STORE"},
		{"redis without addr", func(c *Config) { c.StateStore = "redis"; c.RedisAddr = "" }, "REDIS_ADDR"},
		{"lock without addr", func(c *Config) { c.DistributedLock = true; c.RedisAddr = "" }, "REDIS_ADDR"},
		{"empty http addr", func(c *Config) { c.HTTPAddr = "" }, "APP_HTTP_ADDR"},
		{"empty metrics addr", func(c *Config) { c.MetricsAddr = "" }, "METRICS_ADDR"},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, "REQUEST_TIMEOUT"},
		{"negative rate", func(c *Config) { c.RateLimitPerIP = -1 }, "RATE_LIMIT_PER_IP"},
		{"watch without seed", func(c *Config) { c.SeedWatch = true }, "SEED_WATCH"},
		{"audit without history", func(c *Config) { c.AuditHistory = 0 }, "AUDIT_HISTORY"},
		{"audit disabled", func(c *Config) { c.AuditEnabled = false; c.AuditHistory = 0 }, ""},
		{"webhook", withWebhook, ""},
		{"webhook relative url", func(c *Config) { withWebhook(c); c.WebhookURLs = []string{"/hook"} }, "WEBHOOK_URLS"},
		{"webhook ftp url", func(c *Config) { withWebhook(c); c.WebhookURLs = []string{"ftp://x/hook"} }, "WEBHOOK_URLS"},
		{"webhook without secret", func(c *Config) { withWebhook(c); c.WebhookSecret = "" }, "WEBHOOK_SECRET"},
		{"webhook unknown event", func(c *Config) { withWebhook(c); c.WebhookEvents = []string{"flag.updated"} }, "WEBHOOK_EVENTS"},
		{"webhook zero timeout", func(c *Config) { withWebhook(c); c.WebhookTimeout = 0 }, "WEBHOOK_TIMEOUT"},
		{"webhook negative retries", func(c *Config) { withWebhook(c); c.WebhookMaxRetries = -1 }, "WEBHOOK_MAX_RETRIES"},
		{"prod default key", func(c *Config) { c.AppEnv = "prod" }, "ADMIN_API_KEY"},
		{"prod custom key", func(c *Config) { c.AppEnv = "production"; c.AdminAPIKey = "s3cret" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var ve ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() = %v, want ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Fatalf("Field = %s, want %s", ve.Field, tt.field)
			}
		})
	}
}
