// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
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

	// Model artifacts
	ModelsDir string // Directory holding anomaly/classifier JSON artifacts

	// Scoring
	AlertFloor       float64 // Risk score at which an alert is opened even without the fraud flag
	ProfileRetention time.Duration
	ProfileWindow    int // Number of recent transactions used to build a profile

	// Security
	WebhookSecret string // Fallback HMAC secret for webhook deliveries
	RateLimitRPM  int

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint for traces (empty disables tracing)
}

// Defaults
const (
	DefaultPort             = "8080"
	DefaultEnv              = "development"
	DefaultLogLevel         = "info"
	DefaultModelsDir        = "artifacts"
	DefaultAlertFloor       = 50.0
	DefaultProfileRetention = 30 * 24 * time.Hour
	DefaultProfileWindow    = 100
	DefaultRateLimit        = 120
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		Env:              getEnv("ENV", DefaultEnv),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
		DatabaseURL:      os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		ModelsDir:        getEnv("MODELS_DIR", DefaultModelsDir),
		AlertFloor:       getEnvFloat("ALERT_FLOOR", DefaultAlertFloor),
		ProfileRetention: getEnvDuration("PROFILE_RETENTION", DefaultProfileRetention),
		ProfileWindow:    int(getEnvInt64("PROFILE_WINDOW", DefaultProfileWindow)),
		WebhookSecret:    os.Getenv("WEBHOOK_SECRET"),
		RateLimitRPM:     int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are coherent
func (c *Config) Validate() error {
	if c.AlertFloor < 0 || c.AlertFloor > 100 {
		return fmt.Errorf("ALERT_FLOOR must be between 0 and 100, got %v", c.AlertFloor)
	}
	if c.ProfileWindow <= 0 {
		return fmt.Errorf("PROFILE_WINDOW must be positive, got %d", c.ProfileWindow)
	}
	if c.ProfileRetention <= 0 {
		return fmt.Errorf("PROFILE_RETENTION must be positive, got %v", c.ProfileRetention)
	}
	if c.RateLimitRPM <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPM must be positive, got %d", c.RateLimitRPM)
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
