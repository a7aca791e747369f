// Package config provides configuration for the orchestrator.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the orchestrator configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Model gateway settings
	ModelGatewayURL string
	ModelAPIKey     string
	ModelTimeout    time.Duration

	// Driver settings
	CancelPollInterval    time.Duration
	ProgressFlushInterval time.Duration

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:              getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:           getEnv("DATABASE_URL", "file:sketchd.db?cache=shared&mode=rwc"),
		ModelGatewayURL:       getEnv("MODEL_GATEWAY_URL", "http://localhost:4000"),
		ModelAPIKey:           getEnv("MODEL_API_KEY", ""),
		ModelTimeout:          time.Duration(getEnvInt("MODEL_TIMEOUT_MS", 300000)) * time.Millisecond,
		CancelPollInterval:    time.Duration(getEnvInt("CANCEL_POLL_MS", 700)) * time.Millisecond,
		ProgressFlushInterval: time.Duration(getEnvInt("PROGRESS_FLUSH_MS", 120)) * time.Millisecond,
		LogLevel:              getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
