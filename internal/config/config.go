package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath     string
	MigrationRetries int

	// AMQP. An empty URL disables event forwarding.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Ledger
	InvalidationMode string
	EventBufferSize  int

	// Worker
	WarmInterval time.Duration

	// Process
	LogLevel        string
	ShutdownTimeout time.Duration
}

var (
	validInvalidationModes = []string{"atomic", "best_effort"}
	validLogLevels         = []string{"debug", "info", "warn", "error"}
)

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8081"),

		SQLiteDBPath:     getEnv("SQLITE_DB_PATH", "./data/fintrack.db"),
		MigrationRetries: getEnvInt("MIGRATION_RETRIES", 5),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fintrack"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "budget_cache_warm"),

		InvalidationMode: strings.ToLower(getEnv("INVALIDATION_MODE", "atomic")),
		EventBufferSize:  getEnvInt("EVENT_BUFFER_SIZE", 256),

		WarmInterval: getEnvDuration("WARM_INTERVAL", 10*time.Minute),

		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	return cfg
}

// Validate validates the configuration and returns an error listing every
// problem found
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		// Check if directory exists or can be created
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.MigrationRetries < 1 || c.MigrationRetries > 20 {
		errors = append(errors, fmt.Sprintf("invalid migration retries %d: must be between 1 and 20", c.MigrationRetries))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if !oneOf(c.InvalidationMode, validInvalidationModes) {
		errors = append(errors, fmt.Sprintf("invalid invalidation mode '%s': must be one of %v", c.InvalidationMode, validInvalidationModes))
	}
	if !oneOf(c.LogLevel, validLogLevels) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels))
	}

	if c.EventBufferSize < 1 || c.EventBufferSize > 100000 {
		errors = append(errors, fmt.Sprintf("invalid event buffer size %d: must be between 1 and 100000", c.EventBufferSize))
	}

	if c.WarmInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid warm interval %v: must be at least 1 second", c.WarmInterval))
	} else if c.WarmInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid warm interval %v: must be at most 24 hours", c.WarmInterval))
	}

	if c.ShutdownTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %v: must be at least 1 second", c.ShutdownTimeout))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// RequireAMQP reports an error when the process cannot run without a broker.
func (c *Config) RequireAMQP() error {
	if c.AMQPURL == "" {
		return fmt.Errorf("AMQP_URL is required")
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
