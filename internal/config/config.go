package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Store backends
const (
	StoreSQLite    = "sqlite"
	StoreFirestore = "firestore"
)

// Config holds the settings shared by the CLI and the server.
// The values are loaded from environment variables.
type Config struct {
	// Storage
	Store           string
	DatabasePath    string
	GCPProjectID    string
	CredentialsFile string
	GCSBucket       string

	// Server
	Port           string
	RateLimitRPS   float64
	RateLimitBurst int
	AllowedOrigin  string

	// Logging
	LogLevel  string
	LogPretty bool

	CategoryCacheTTL time.Duration
}

// Load reads an optional .env file and then the environment. A missing .env
// file is not an error.
func Load(log zerolog.Logger, envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug().Msg("no .env file found, using environment")
		} else {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	cfg := &Config{
		Store:           strings.ToLower(getEnv("PJLEDGER_STORE", StoreSQLite)),
		DatabasePath:    getEnv("PJLEDGER_DB_PATH", "pjledger.db"),
		GCPProjectID:    getEnv("GCP_PROJECT_ID", ""),
		CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		GCSBucket:       getEnv("GCS_BUCKET", ""),

		Port:           getEnv("PORT", "8080"),
		RateLimitRPS:   getEnvAsFloat(log, "RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvAsInt(log, "RATE_LIMIT_BURST", 20),
		AllowedOrigin:  getEnv("ALLOWED_ORIGIN", "*"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool(log, "LOG_PRETTY", false),

		CategoryCacheTTL: getEnvAsDuration(log, "CATEGORY_CACHE_TTL", 10*time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected backend has what it needs.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("PJLEDGER_DB_PATH is required for the sqlite store")
		}
	case StoreFirestore:
		if c.GCPProjectID == "" {
			return fmt.Errorf("GCP_PROJECT_ID is required for the firestore store")
		}
	default:
		return fmt.Errorf("unknown PJLEDGER_STORE %q (expected %s or %s)", c.Store, StoreSQLite, StoreFirestore)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit must be positive (rps=%v burst=%d)", c.RateLimitRPS, c.RateLimitBurst)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvAsInt retrieves an environment variable as an integer or returns a fallback.
func getEnvAsInt(log zerolog.Logger, key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Warn().Str("key", key).Str("value", valueStr).Int("default", fallback).Msg("invalid integer, using default")
	return fallback
}

func getEnvAsFloat(log zerolog.Logger, key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	log.Warn().Str("key", key).Str("value", valueStr).Float64("default", fallback).Msg("invalid number, using default")
	return fallback
}

// getEnvAsDuration retrieves an environment variable as a time.Duration or returns a fallback.
func getEnvAsDuration(log zerolog.Logger, key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Warn().Str("key", key).Str("value", valueStr).Dur("default", fallback).Msg("invalid duration, using default")
	return fallback
}

func getEnvAsBool(log zerolog.Logger, key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	log.Warn().Str("key", key).Str("value", valueStr).Bool("default", fallback).Msg("invalid boolean, using default")
	return fallback
}
