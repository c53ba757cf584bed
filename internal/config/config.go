// ABOUTME: Centralized configuration for the palmchat storage core
// ABOUTME: Loads from environment variables with validation and defaults
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/junelab/palmchat/internal/database"
)

// Config holds all configuration for the storage core.
type Config struct {
	// Database settings
	DBPath string
	Page   string

	// Model settings (fallbacks; the apiSettings record wins when present)
	ModelURL     string
	ModelKey     string
	ModelName    string
	ModelTimeout time.Duration
	MaxRetries   int
	RetryDelay   time.Duration

	// Memory pipeline settings
	PrivateThreshold int
	GroupThreshold   int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DBPath:           getEnv("PALMCHAT_DB", database.DefaultDBPath()),
		Page:             getEnv("PALMCHAT_PAGE", "cli"),
		ModelURL:         os.Getenv("PALMCHAT_MODEL_URL"),
		ModelKey:         os.Getenv("PALMCHAT_MODEL_KEY"),
		ModelName:        os.Getenv("PALMCHAT_MODEL"),
		ModelTimeout:     getEnvDuration("PALMCHAT_MODEL_TIMEOUT", 30*time.Second),
		MaxRetries:       getEnvInt("PALMCHAT_MODEL_MAX_RETRIES", 3),
		RetryDelay:       getEnvDuration("PALMCHAT_MODEL_RETRY_DELAY", 2*time.Second),
		PrivateThreshold: getEnvInt("PALMCHAT_MEMORY_PRIVATE_THRESHOLD", 3),
		GroupThreshold:   getEnvInt("PALMCHAT_MEMORY_GROUP_THRESHOLD", 1),
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("PALMCHAT_MODEL_MAX_RETRIES must be 0-10, got %d", c.MaxRetries)
	}
	if c.PrivateThreshold < 1 {
		return fmt.Errorf("PALMCHAT_MEMORY_PRIVATE_THRESHOLD must be positive, got %d", c.PrivateThreshold)
	}
	if c.GroupThreshold < 1 {
		return fmt.Errorf("PALMCHAT_MEMORY_GROUP_THRESHOLD must be positive, got %d", c.GroupThreshold)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
