package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/doodhwala/billing/internal/logger"
)

// Drivers accepted in BILLING_DRIVER.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

type Config struct {
	// Storage
	Driver      string
	DatabaseURL string

	// Engine
	Currency            string
	DueDays             int
	TaxBasisPoints      int64
	DiscountBasisPoints int64
	Concurrency         int

	// HTTP
	HTTPAddr        string
	ShutdownTimeout time.Duration

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// Load reads .env files when present, then the environment.
func Load(envFiles ...string) (*Config, error) {
	// A missing .env is normal in deployed environments.
	_ = godotenv.Load(envFiles...)

	cfg := &Config{
		Driver:        strings.ToLower(getEnv("BILLING_DRIVER", DriverMemory)),
		DatabaseURL:   getEnv("BILLING_DATABASE_URL", ""),
		Currency:      strings.ToLower(getEnv("BILLING_CURRENCY", "inr")),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "console"),
		LogTimeFormat: getEnv("LOG_TIME_FORMAT", time.RFC3339),
		LogOutput:     getEnv("LOG_OUTPUT", "stderr"),
	}

	var err error
	if cfg.DueDays, err = getEnvInt("BILLING_DUE_DAYS", 10); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = getEnvInt("BILLING_CONCURRENCY", 8); err != nil {
		return nil, err
	}
	taxBP, err := getEnvInt("BILLING_TAX_BP", 0)
	if err != nil {
		return nil, err
	}
	discountBP, err := getEnvInt("BILLING_DISCOUNT_BP", 0)
	if err != nil {
		return nil, err
	}
	cfg.TaxBasisPoints, cfg.DiscountBasisPoints = int64(taxBP), int64(discountBP)
	if cfg.ShutdownTimeout, err = time.ParseDuration(getEnv("HTTP_SHUTDOWN_TIMEOUT", "15s")); err != nil {
		return nil, fmt.Errorf("HTTP_SHUTDOWN_TIMEOUT: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Driver {
	case DriverMemory:
	case DriverPostgres, DriverMySQL:
		if c.DatabaseURL == "" {
			return fmt.Errorf("BILLING_DATABASE_URL is required for driver %s", c.Driver)
		}
	default:
		return fmt.Errorf("BILLING_DRIVER %q is not one of memory, postgres, mysql", c.Driver)
	}
	if c.DueDays < 0 {
		return fmt.Errorf("BILLING_DUE_DAYS must not be negative")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("BILLING_CONCURRENCY must be positive")
	}
	if c.TaxBasisPoints < 0 || c.DiscountBasisPoints < 0 || c.DiscountBasisPoints > 10000 {
		return fmt.Errorf("BILLING_TAX_BP and BILLING_DISCOUNT_BP must be within 0..10000")
	}
	return nil
}

// HasDefaultRule reports whether a default tax or discount is configured.
func (c *Config) HasDefaultRule() bool {
	return c.TaxBasisPoints != 0 || c.DiscountBasisPoints != 0
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
