package config

import (
	"os"
	"time"
)

type Config struct {
	// Server
	Port    string
	GinMode string

	// Database. "memory" selects the in-process backend (local dev, tests).
	DatabaseURL string

	// Sessions
	SessionSecret string

	// Site owner account, seeded on startup.
	OwnerEmail    string
	OwnerPassword string
	OwnerName     string

	// Client-side bound on every backend call. The session-context RPC has
	// been observed to hang; an unbounded wait would pin the caller in a
	// "submitting" state forever.
	BackendTimeout time.Duration

	// Logging
	LogLevel string
}

func Load() *Config {
	return &Config{
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		DatabaseURL: getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=quillside port=5432 sslmode=disable"),

		SessionSecret: getEnv("SESSION_SECRET", "secret_key_change_me"),

		OwnerEmail:    getEnv("OWNER_EMAIL", "owner@localhost"),
		OwnerPassword: getEnv("OWNER_PASSWORD", "change_me_please"),
		OwnerName:     getEnv("OWNER_NAME", "Author"),

		BackendTimeout: getDuration("BACKEND_TIMEOUT", 6*time.Second),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
