package config

import (
	"os"
	"strconv"
	"time"

	"speccheck/internal/errors"
)

// Config is the complete application configuration.
type Config struct {
	Oracle   OracleConfig
	Compare  CompareConfig
	Database DatabaseConfig
	Server   ServerConfig
}

// OracleConfig holds reasoning-service settings.
type OracleConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
	Retry       RetryPolicy
}

// RetryPolicy controls retry-with-backoff for the oracle client. It is
// explicit configuration so test suites can exercise exhaustion quickly.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // fraction of the delay, 0..1
}

// DefaultRetryPolicy matches the production rate ceiling of the service.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      0.2,
	}
}

// CompareConfig holds comparison-run settings.
type CompareConfig struct {
	// Concurrency bounds in-flight oracle calls per run.
	Concurrency int64
	// ThrottleAbortThreshold is the number of consecutive throttle
	// exhaustions after which the rest of a document is abandoned.
	ThrottleAbortThreshold int
	// MaxPromptChars caps document text included in a prompt; larger
	// documents are reduced to relevant fragments.
	MaxPromptChars int
}

// DefaultCompareConfig returns production defaults.
func DefaultCompareConfig() CompareConfig {
	return CompareConfig{
		Concurrency:            4,
		ThrottleAbortThreshold: 3,
		MaxPromptChars:         24000,
	}
}

// DatabaseConfig holds the optional verdict audit store connection.
type DatabaseConfig struct {
	URL string // empty disables persistence
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port string
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	apiKey := os.Getenv("ORACLE_API_KEY")
	if apiKey == "" {
		return nil, errors.ConfigInvalid("ORACLE_API_KEY is required")
	}

	cfg := &Config{
		Oracle: OracleConfig{
			APIKey:      apiKey,
			BaseURL:     getEnvOrDefault("ORACLE_BASE_URL", "https://api.openai.com/v1"),
			Model:       getEnvOrDefault("ORACLE_MODEL", "gpt-4o-mini"),
			Timeout:     getEnvDurationOrDefault("ORACLE_TIMEOUT", 120*time.Second),
			Temperature: getEnvFloatOrDefault("ORACLE_TEMPERATURE", 0.1),
			MaxTokens:   getEnvIntOrDefault("ORACLE_MAX_TOKENS", 1024),
			Retry: RetryPolicy{
				MaxAttempts: getEnvIntOrDefault("ORACLE_RETRY_ATTEMPTS", 5),
				BaseDelay:   getEnvDurationOrDefault("ORACLE_RETRY_BASE_DELAY", time.Second),
				MaxDelay:    getEnvDurationOrDefault("ORACLE_RETRY_MAX_DELAY", 30*time.Second),
				Jitter:      getEnvFloatOrDefault("ORACLE_RETRY_JITTER", 0.2),
			},
		},
		Compare: CompareConfig{
			Concurrency:            int64(getEnvIntOrDefault("COMPARE_CONCURRENCY", 4)),
			ThrottleAbortThreshold: getEnvIntOrDefault("COMPARE_THROTTLE_ABORT", 3),
			MaxPromptChars:         getEnvIntOrDefault("COMPARE_MAX_PROMPT_CHARS", 24000),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
	}

	if cfg.Compare.Concurrency < 1 {
		return nil, errors.ConfigInvalid("COMPARE_CONCURRENCY must be at least 1")
	}
	if cfg.Oracle.Retry.MaxAttempts < 1 {
		return nil, errors.ConfigInvalid("ORACLE_RETRY_ATTEMPTS must be at least 1")
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
