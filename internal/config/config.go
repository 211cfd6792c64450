// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mbd888/tenantdesk/internal/partition"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Tenancy
	BaseDomain       string // Host of the public partition; tenants live on <subdomain>.<BaseDomain>
	PublicSchemaName string
	SeedPlans        bool // Insert the default subscription tiers at boot

	// Security
	AdminSecret  string // Shared secret for /admin routes
	RateLimitRPM int

	// Integrations
	StripeSecretKey string // Enables the Stripe billing gate (optional)
	OTLPEndpoint    string // OpenTelemetry collector (optional)
}

const (
	DefaultPort         = "8080"
	DefaultEnv          = "development"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	DefaultBaseDomain   = "localhost"
	DefaultPublicSchema = "public"
	DefaultRateLimit    = 120
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	env := getEnv("ENV", DefaultEnv)
	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		Env:              env,
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:        getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:      os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		BaseDomain:       strings.ToLower(strings.TrimSpace(getEnv("BASE_DOMAIN", DefaultBaseDomain))),
		PublicSchemaName: strings.TrimSpace(getEnv("PUBLIC_SCHEMA_NAME", DefaultPublicSchema)),
		SeedPlans:        getEnvBool("SEED_PLANS", env == DefaultEnv),
		AdminSecret:      os.Getenv("ADMIN_SECRET"),
		RateLimitRPM:     int(getEnvInt64("RATE_LIMIT_RPM", int64(DefaultRateLimit))),
		StripeSecretKey:  os.Getenv("STRIPE_SECRET_KEY"),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.BaseDomain == "" {
		return fmt.Errorf("BASE_DOMAIN is required")
	}
	if c.PublicSchemaName == "" {
		return fmt.Errorf("PUBLIC_SCHEMA_NAME is required")
	}
	if !partition.ValidSchemaName(c.PublicSchemaName) {
		return fmt.Errorf("PUBLIC_SCHEMA_NAME %q is not a valid schema name", c.PublicSchemaName)
	}
	if c.RateLimitRPM <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPM must be positive")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json")
	}
	if c.IsProduction() && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
	}
	return nil
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

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
