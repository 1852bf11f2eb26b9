package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Inference providers.
const (
	ProviderNeurochain = "neurochain"
	ProviderOpenAI     = "openai"
)

// Config holds all configuration for the application.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL string
	StoreDriver string
	RedisURL    string

	DedupCapacity int
	DedupTTL      time.Duration

	InferenceProvider string
	InferenceURL      string
	InferenceModel    string
	InferenceAPIKey   string
	InferenceTimeout  time.Duration
	InferenceAttempts int

	TelegramAPIKey string
	MaxConcurrency int

	problems []string
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// Malformed values are reported by Validate.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		Env:               getEnv("ENV", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		StoreDriver:       strings.ToLower(os.Getenv("STORE_DRIVER")),
		RedisURL:          os.Getenv("REDIS_URL"),
		InferenceProvider: strings.ToLower(getEnv("INFERENCE_PROVIDER", ProviderNeurochain)),
		InferenceURL:      os.Getenv("INFERENCE_URL"),
		InferenceModel:    os.Getenv("INFERENCE_MODEL"),
		InferenceAPIKey:   getEnv("INFERENCE_API_KEY", os.Getenv("NEUROCHAIN_API_KEY")),
		TelegramAPIKey:    os.Getenv("TELEGRAM_API_KEY"),
	}

	cfg.DedupCapacity = cfg.intEnv("DEDUP_CAPACITY", 100_000)
	cfg.DedupTTL = cfg.durationEnv("DEDUP_TTL", 24*time.Hour)
	cfg.InferenceTimeout = cfg.durationEnv("INFERENCE_TIMEOUT", 30*time.Second)
	cfg.InferenceAttempts = cfg.intEnv("INFERENCE_ATTEMPTS", 3)
	cfg.MaxConcurrency = cfg.intEnv("MAX_CONCURRENCY", 16)

	if cfg.StoreDriver == "" {
		cfg.StoreDriver = inferDriver(cfg.DatabaseURL)
	}

	return cfg
}

// Validate reports everything the bot needs that is missing or malformed.
func (c *Config) Validate() error {
	problems := c.check()
	if c.TelegramAPIKey == "" {
		problems = append(problems, "TELEGRAM_API_KEY is required")
	}
	if c.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	return joinProblems(problems)
}

// ValidateInference reports what a one-shot classification needs.
func (c *Config) ValidateInference() error {
	return joinProblems(c.check())
}

// ValidateStore reports what opening the configured database needs.
func (c *Config) ValidateStore() error {
	var problems []string
	if c.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	switch c.StoreDriver {
	case DriverPostgres, DriverSQLite:
	default:
		problems = append(problems, fmt.Sprintf("STORE_DRIVER %q is not one of postgres, sqlite", c.StoreDriver))
	}
	return joinProblems(problems)
}

func (c *Config) check() []string {
	problems := append([]string(nil), c.problems...)
	if c.InferenceAPIKey == "" {
		problems = append(problems, "INFERENCE_API_KEY (or NEUROCHAIN_API_KEY) is required")
	}
	switch c.InferenceProvider {
	case ProviderNeurochain, ProviderOpenAI:
	default:
		problems = append(problems, fmt.Sprintf("INFERENCE_PROVIDER %q is not one of neurochain, openai", c.InferenceProvider))
	}
	switch c.StoreDriver {
	case DriverPostgres, DriverSQLite:
	default:
		problems = append(problems, fmt.Sprintf("STORE_DRIVER %q is not one of postgres, sqlite", c.StoreDriver))
	}
	if c.InferenceAttempts < 1 {
		problems = append(problems, "INFERENCE_ATTEMPTS must be at least 1")
	}
	if c.MaxConcurrency < 1 {
		problems = append(problems, "MAX_CONCURRENCY must be at least 1")
	}
	return problems
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// SQLitePath returns the database file for the sqlite driver.
func (c *Config) SQLitePath() string {
	return strings.TrimPrefix(c.DatabaseURL, "sqlite://")
}

func inferDriver(databaseURL string) string {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

func joinProblems(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration: " + strings.Join(problems, "; "))
}

func (c *Config) intEnv(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.problems = append(c.problems, fmt.Sprintf("%s: %q is not an integer", key, raw))
		return defaultValue
	}
	return n
}

func (c *Config) durationEnv(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		c.problems = append(c.problems, fmt.Sprintf("%s: %q is not a duration", key, raw))
		return defaultValue
	}
	return d
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
