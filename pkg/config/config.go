// Package config loads the broker's environment-driven configuration,
// mirroring the teacher's Load()-from-env shape.
package config

import (
	"os"
	"strconv"
)

// StoreBackend selects which resource.Store implementation cmd/resource-broker
// constructs.
type StoreBackend string

const (
	BackendSQLite   StoreBackend = "sqlite"
	BackendPostgres StoreBackend = "postgres"
	BackendRedis    StoreBackend = "redis"
)

// Config holds broker configuration.
type Config struct {
	Port             string
	LogLevel         string
	StoreBackend     StoreBackend
	SQLitePath       string
	DatabaseURL      string
	RedisAddr        string
	ResourceYAMLPath string

	ObservabilityEnabled bool
	OTLPEndpoint         string

	RateLimitRPS   int
	RateLimitBurst int
}

// Load loads configuration from environment variables, falling back to
// development-friendly defaults for everything except RESOURCE_YAML_PATH,
// which the caller must treat as required (spec §6.3).
func Load() *Config {
	return &Config{
		Port:                 getenv("PORT", "8080"),
		LogLevel:             getenv("LOG_LEVEL", "INFO"),
		StoreBackend:         StoreBackend(getenv("STORE_BACKEND", string(BackendSQLite))),
		SQLitePath:           getenv("RESOURCE_DB_PATH", "resource_database.db"),
		DatabaseURL:          getenv("DATABASE_URL", "postgres://resource_broker@localhost:5432/resource_broker?sslmode=disable"),
		RedisAddr:            getenv("REDIS_ADDR", "localhost:6379"),
		ResourceYAMLPath:     os.Getenv("RESOURCE_YAML_PATH"),
		ObservabilityEnabled: getenvBool("OTEL_ENABLED", false),
		OTLPEndpoint:         getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		RateLimitRPS:         getenvInt("RATE_LIMIT_RPS", 50),
		RateLimitBurst:       getenvInt("RATE_LIMIT_BURST", 100),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
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

func getenvInt(key string, fallback int) int {
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
