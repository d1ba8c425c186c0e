// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "json" or "text"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Webhook verification
	WebhookSecret        string // HMAC secret for inbound webhook signatures
	WebhookMaxAgeSeconds int    // Reject events older than this
	WebhookClockSkew     int    // Tolerated seconds into the future
	WebhookCacheTTL      int    // Replay dedup window, seconds
	WebhookAllowedIPs    string // Comma-separated IPs/CIDRs, empty allows all

	// Rate limiting
	RateLimitRulesFile string // YAML rules file, hot-reloaded when set
	ExemptEndpoints    string // Comma-separated glob patterns

	// Wallet saldo buckets (IDR decimal strings)
	SaldoCriticalBelow string
	SaldoLowBelow      string

	// Sweep schedules (cron expressions)
	DecaySchedule  string
	UnlockSchedule string

	// Observability
	OTLPEndpoint string // OTLP/gRPC collector, tracing disabled when empty

	// Security
	AdminSecret string // Admin API secret
}

const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
	DefaultWebhookMaxAge  = 300
	DefaultClockSkew      = 60
	DefaultCacheTTL       = 3600
	DefaultSaldoCritical  = "10000.00"
	DefaultSaldoLow       = "50000.00"
	DefaultDecaySchedule  = "0 * * * *"
	DefaultUnlockSchedule = "*/15 * * * *"
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  getEnv("ENV", DefaultEnv),
		LogLevel:             getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:            getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:          os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		WebhookSecret:        os.Getenv("WEBHOOK_SECRET"),
		WebhookMaxAgeSeconds: getEnvInt("WEBHOOK_MAX_AGE_SECONDS", DefaultWebhookMaxAge),
		WebhookClockSkew:     getEnvInt("WEBHOOK_CLOCK_SKEW_SECONDS", DefaultClockSkew),
		WebhookCacheTTL:      getEnvInt("WEBHOOK_CACHE_TTL_SECONDS", DefaultCacheTTL),
		WebhookAllowedIPs:    os.Getenv("WEBHOOK_ALLOWED_IPS"),
		RateLimitRulesFile:   os.Getenv("RATE_LIMIT_RULES_FILE"),
		ExemptEndpoints:      getEnv("RATE_LIMIT_EXEMPT_ENDPOINTS", "/health,/metrics,/api/webhooks/*"),
		SaldoCriticalBelow:   getEnv("SALDO_CRITICAL_BELOW", DefaultSaldoCritical),
		SaldoLowBelow:        getEnv("SALDO_LOW_BELOW", DefaultSaldoLow),
		DecaySchedule:        getEnv("DECAY_SCHEDULE", DefaultDecaySchedule),
		UnlockSchedule:       getEnv("UNLOCK_SCHEDULE", DefaultUnlockSchedule),
		OTLPEndpoint:         os.Getenv("OTLP_ENDPOINT"),
		AdminSecret:          os.Getenv("ADMIN_SECRET"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required")
	}
	if len(c.WebhookSecret) < 16 {
		return fmt.Errorf("WEBHOOK_SECRET must be at least 16 characters")
	}

	if c.WebhookMaxAgeSeconds <= 0 {
		return fmt.Errorf("WEBHOOK_MAX_AGE_SECONDS must be positive")
	}
	if c.WebhookCacheTTL < c.WebhookMaxAgeSeconds {
		return fmt.Errorf("WEBHOOK_CACHE_TTL_SECONDS must cover the freshness window (>= WEBHOOK_MAX_AGE_SECONDS)")
	}

	return nil
}

// ExemptPatterns returns the exempt endpoint list as individual patterns.
func (c *Config) ExemptPatterns() []string {
	return splitList(c.ExemptEndpoints)
}

// AllowedIPs returns the webhook IP allow-list entries.
func (c *Config) AllowedIPs() []string {
	return splitList(c.WebhookAllowedIPs)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
