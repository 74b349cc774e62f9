// Package config loads the orchestrator's runtime configuration from the
// environment. There is no config file format; every setting is a single
// environment variable with a documented default.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the chain bridge orchestrator.
type Config struct {
	// Database Configuration
	DatabaseURL         string // absent -> bridge disabled
	DatabaseMaxConns    int
	DatabaseConnTimeout time.Duration

	// Chain Configuration
	ChainWSURL    string // absent -> bridge disabled
	SignerKeyPath string // path to the bridge's single configured signer keypair

	// Worker Configuration
	OutboxPollInterval    time.Duration
	BackfillInterval      time.Duration
	SubmitterWorkers      int

	// Observability
	MetricsBind string // absent -> no /metrics listener

	// API Configuration
	APIBind string
}

// Load reads configuration from environment variables, applying the
// documented defaults for each setting.
func Load() *Config {
	return &Config{
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		DatabaseMaxConns:    getEnvInt("DB_MAX_CONNECTIONS", 10),
		DatabaseConnTimeout: getEnvDuration("DB_CONNECT_TIMEOUT_SECS", 5*time.Second, time.Second),

		ChainWSURL:    getEnv("CHAIN_WS_URL", ""),
		SignerKeyPath: getEnv("SIGNER_KEY_PATH", "./data/signer_key.hex"),

		OutboxPollInterval: getEnvDuration("OUTBOX_POLL_MS", 500*time.Millisecond, time.Millisecond),
		BackfillInterval:   getEnvDuration("BACKFILL_INTERVAL_MS", 10*time.Second, time.Millisecond),
		SubmitterWorkers:   getEnvInt("OUTBOX_WORKERS", 1),

		MetricsBind: getEnv("METRICS_BIND", ""),
		APIBind:     getEnv("API_BIND", "0.0.0.0:8080"),
	}
}

// BridgeEnabled reports whether both the database and the chain client are
// configured. Absence of either disables the chain bridge and leaves the
// orchestrator running with in-memory projections only.
func (c *Config) BridgeEnabled() bool {
	return c.DatabaseURL != "" && c.ChainWSURL != ""
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvDuration reads an integer environment variable and scales it by
// unit (e.g. time.Millisecond for *_MS variables, time.Second for *_SECS).
func getEnvDuration(key string, defaultValue, unit time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(n) * unit
		}
	}
	return defaultValue
}
