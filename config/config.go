// Package config loads SDK configuration from environment variables.
//
// A .env file in the working directory is honored when present, so
// local development matches deployed configuration handling.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable read from the environment.
type Config struct {
	// Backend endpoints
	AuthBaseURL       string // LABDOJO_AUTH_URL
	ManagementBaseURL string // LABDOJO_MANAGEMENT_URL

	// Local persistence
	TokenStorageKey  string // LABDOJO_TOKEN_STORAGE_KEY
	TokenStoragePath string // LABDOJO_TOKEN_STORAGE_PATH (empty = in-memory)

	// Auth behavior
	AuthEnabled          bool          // LABDOJO_AUTH_ENABLED
	RefreshCheckInterval time.Duration // LABDOJO_REFRESH_CHECK_SECONDS
	RefreshWindow        time.Duration // LABDOJO_REFRESH_WINDOW_SECONDS

	// Health monitoring
	HealthPollInterval time.Duration // LABDOJO_HEALTH_POLL_SECONDS

	// Metrics
	MetricsEnabled bool // LABDOJO_METRICS_ENABLED
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set variables directly.
	_ = godotenv.Load()

	cfg := &Config{
		AuthBaseURL:          getEnv("LABDOJO_AUTH_URL", "http://localhost:5000/auth"),
		ManagementBaseURL:    getEnv("LABDOJO_MANAGEMENT_URL", "http://localhost:5000/management"),
		TokenStorageKey:      getEnv("LABDOJO_TOKEN_STORAGE_KEY", "labdojo_auth_token"),
		TokenStoragePath:     getEnv("LABDOJO_TOKEN_STORAGE_PATH", ""),
		AuthEnabled:          getEnvBool("LABDOJO_AUTH_ENABLED", true),
		RefreshCheckInterval: time.Duration(getEnvInt("LABDOJO_REFRESH_CHECK_SECONDS", 60)) * time.Second,
		RefreshWindow:        time.Duration(getEnvInt("LABDOJO_REFRESH_WINDOW_SECONDS", 300)) * time.Second,
		HealthPollInterval:   time.Duration(getEnvInt("LABDOJO_HEALTH_POLL_SECONDS", 30)) * time.Second,
		MetricsEnabled:       getEnvBool("LABDOJO_METRICS_ENABLED", false),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.AuthBaseURL == "" {
		return fmt.Errorf("config: LABDOJO_AUTH_URL cannot be empty")
	}
	if c.RefreshCheckInterval <= 0 {
		return fmt.Errorf("config: LABDOJO_REFRESH_CHECK_SECONDS must be positive")
	}
	if c.RefreshWindow <= 0 {
		return fmt.Errorf("config: LABDOJO_REFRESH_WINDOW_SECONDS must be positive")
	}
	if c.HealthPollInterval <= 0 {
		return fmt.Errorf("config: LABDOJO_HEALTH_POLL_SECONDS must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
