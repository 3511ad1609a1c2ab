// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	// SessionIdleTTL is how long an untouched interview session is kept.
	SessionIdleTTL time.Duration
	Inference      InferenceConfig
	Speech         SpeechConfig
	Backup         BackupConfig
	Metrics        MetricsConfig
	RateLimit      RateLimitConfig
}

// InferenceConfig locates the model collaborator.
type InferenceConfig struct {
	Addr string
	// Timeout bounds a single attempt with one credential.
	Timeout time.Duration
}

// SpeechConfig controls interviewer narration.
type SpeechConfig struct {
	Enabled         bool
	RevealWordDelay time.Duration
}

// BackupConfig points at the remote libsql database. An empty URL disables backup.
type BackupConfig struct {
	URL       string
	AuthToken string
}

// Enabled reports whether a backup remote is configured.
func (b BackupConfig) Enabled() bool { return b.URL != "" }

// MetricsConfig controls OTLP metric export.
type MetricsConfig struct {
	Enabled  bool
	Endpoint string
	Insecure bool
}

// RateLimitConfig bounds model-backed requests per learner.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/dsaquest.db"),
		SessionIdleTTL: getEnvDuration("SESSION_IDLE_TTL", 60*time.Minute),
		Inference: InferenceConfig{
			Addr:    getEnv("INFERENCE_ADDR", "localhost:50051"),
			Timeout: getEnvDuration("INFERENCE_TIMEOUT", 45*time.Second),
		},
		Speech: SpeechConfig{
			Enabled:         getEnvBool("SPEECH_ENABLED", true),
			RevealWordDelay: getEnvDuration("REVEAL_WORD_DELAY", 180*time.Millisecond),
		},
		Backup: BackupConfig{
			URL:       getEnv("BACKUP_URL", ""),
			AuthToken: getEnv("BACKUP_AUTH_TOKEN", ""),
		},
		Metrics: MetricsConfig{
			Enabled:  getEnvBool("OTEL_ENABLED", false),
			Endpoint: getEnv("OTEL_ENDPOINT", ""),
			Insecure: getEnvBool("OTEL_INSECURE", false),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Inference.Addr == "" {
		return fmt.Errorf("INFERENCE_ADDR cannot be empty")
	}
	if c.Inference.Timeout <= 0 {
		return fmt.Errorf("INFERENCE_TIMEOUT must be > 0")
	}
	if c.Speech.RevealWordDelay < 0 {
		return fmt.Errorf("REVEAL_WORD_DELAY cannot be negative")
	}
	if c.SessionIdleTTL <= 0 {
		return fmt.Errorf("SESSION_IDLE_TTL must be > 0")
	}
	if c.Metrics.Enabled && c.Metrics.Endpoint == "" {
		return fmt.Errorf("OTEL_ENDPOINT is required when OTEL_ENABLED is set")
	}
	if c.RateLimit.Requests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
