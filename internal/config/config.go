// Package config provides configuration management for the civic cache
// service. Values are loaded from environment variables with sensible
// defaults and validated before the application starts.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//
// Redis Configuration:
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//
// Cache Configuration:
//   - CACHE_KEY_PREFIX: Namespace prefix for all cache keys, keeps this
//     application's keys apart from other users of a shared Redis
//     instance (default: civiq:cache:)
//   - CACHE_DEFAULT_TTL: TTL applied when a caller omits one (default: 5m)
//   - CACHE_CLEANUP_INTERVAL: Sweep interval for the in-memory fallback
//     store (default: 10m)
//
// Background Refresh:
//   - REFRESH_SCHEDULE: Cron expression for periodic full refresh;
//     empty disables the schedule (default: empty)
//   - REFRESH_MAX_CONCURRENT: Upstream fetches in flight per batch (default: 3)
//   - REFRESH_DELAY: Pause between refresh batches (default: 500ms)
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all configuration values for the cache service.
type Config struct {
	// Application settings
	Port     string // Server port number
	LogLevel string // Logging level (debug, info, warn, error)

	// Redis configuration for the shared primary store
	RedisAddress  string // Redis server address (host:port)
	RedisPassword string // Redis authentication password
	RedisDB       string // Redis database number (0-15)
	RedisPoolSize string // Redis connection pool size

	// Cache policy
	CacheKeyPrefix       string        // Key namespace on the shared Redis instance
	CacheDefaultTTL      time.Duration // TTL used when callers omit one
	CacheCleanupInterval time.Duration // Fallback store sweep interval

	// Background refresh configuration
	RefreshSchedule      string        // Cron expression, empty disables
	RefreshMaxConcurrent int           // Fetches in flight per batch
	RefreshDelay         time.Duration // Pause between batches
}

// Load creates a new Config instance with values loaded from environment
// variables. Call Validate() on the result before use.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),
		RedisPoolSize: getEnv("REDIS_POOL_SIZE", "10"),

		CacheKeyPrefix:       getEnv("CACHE_KEY_PREFIX", "civiq:cache:"),
		CacheDefaultTTL:      getDurationEnv("CACHE_DEFAULT_TTL", 5*time.Minute),
		CacheCleanupInterval: getDurationEnv("CACHE_CLEANUP_INTERVAL", 10*time.Minute),

		RefreshSchedule:      getEnv("REFRESH_SCHEDULE", ""),
		RefreshMaxConcurrent: getIntEnv("REFRESH_MAX_CONCURRENT", 3),
		RefreshDelay:         getDurationEnv("REFRESH_DELAY", 500*time.Millisecond),
	}
}

// getEnv retrieves an environment variable value or returns a default
// value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves an integer environment variable value or returns a
// default value if not set or invalid.
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv retrieves a duration environment variable value (e.g.
// "5m", "30s") or returns a default value if not set or invalid.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate performs validation on the configuration to ensure all values
// are present and valid before the application starts.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	if c.RedisAddress != "" {
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
		if poolSize, err := strconv.Atoi(c.RedisPoolSize); err != nil || poolSize < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
		}
	}

	if c.CacheKeyPrefix == "" {
		return fmt.Errorf("CACHE_KEY_PREFIX must not be empty: a shared Redis instance needs a namespace")
	}

	if c.CacheDefaultTTL <= 0 {
		return fmt.Errorf("CACHE_DEFAULT_TTL must be a positive duration (e.g. '5m')")
	}

	if c.CacheCleanupInterval <= 0 {
		return fmt.Errorf("CACHE_CLEANUP_INTERVAL must be a positive duration")
	}

	if c.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(c.RefreshSchedule); err != nil {
			return fmt.Errorf("REFRESH_SCHEDULE must be a valid cron expression: %v", err)
		}
	}

	if c.RefreshMaxConcurrent < 1 {
		return fmt.Errorf("REFRESH_MAX_CONCURRENT must be a positive number")
	}

	if c.RefreshDelay < 0 {
		return fmt.Errorf("REFRESH_DELAY must not be negative")
	}

	return nil
}
