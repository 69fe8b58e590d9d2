package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Provider APIs
	FluxAPIKey     string
	FluxAPIBaseURL string
	KlingAPIKey    string
	KlingBaseURL   string
	VeoAPIKey      string
	VeoBaseURL     string

	// Webhook
	WebhookCallbackURL string
	WebhookSecret      string

	// Supabase
	SupabaseURL            string
	SupabasePublishableKey string
	SupabaseJWTSecret      string
	SupabaseStorageBucket  string

	// Database
	DatabaseURL string

	// Job lifecycle
	StuckAfter   time.Duration
	OrphanAfter  time.Duration
	PollInterval time.Duration

	// Server
	Port        string
	Environment string
	LogLevel    string
}

func Load() (*Config, error) {
	// Missing .env is fine, the environment may carry everything.
	_ = godotenv.Load()

	cfg := &Config{
		FluxAPIKey:     getEnv("FLUX_API_KEY", ""),
		FluxAPIBaseURL: getEnv("FLUX_API_BASE_URL", "https://api.bfl.ai"),
		KlingAPIKey:    getEnv("KLING_API_KEY", ""),
		KlingBaseURL:   getEnv("KLING_API_BASE_URL", "https://api.klingai.com"),
		VeoAPIKey:      getEnv("VEO_API_KEY", ""),
		VeoBaseURL:     getEnv("VEO_API_BASE_URL", "https://generativelanguage.googleapis.com"),

		WebhookCallbackURL: getEnv("WEBHOOK_CALLBACK_URL", ""),
		WebhookSecret:      getEnv("WEBHOOK_SECRET", ""),

		SupabaseURL:            getEnv("SUPABASE_URL", ""),
		SupabasePublishableKey: getEnv("SUPABASE_PUBLISHABLE_KEY", ""),
		SupabaseJWTSecret:      getEnv("SUPABASE_JWT_SECRET", ""),
		SupabaseStorageBucket:  getEnv("SUPABASE_STORAGE_BUCKET", "generated-media"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		StuckAfter:   getDurationEnv("JOB_STUCK_AFTER", 10*time.Minute),
		OrphanAfter:  getDurationEnv("JOB_ORPHAN_AFTER", 30*time.Minute),
		PollInterval: getDurationEnv("JOB_POLL_INTERVAL", 30*time.Second),

		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabasePublishableKey == "" {
		return fmt.Errorf("SUPABASE_PUBLISHABLE_KEY is required")
	}
	if c.SupabaseJWTSecret == "" {
		return fmt.Errorf("SUPABASE_JWT_SECRET is required")
	}
	if c.FluxAPIKey == "" && c.KlingAPIKey == "" && c.VeoAPIKey == "" {
		return fmt.Errorf("at least one provider API key is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
