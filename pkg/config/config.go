package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds process configuration.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string // "text" or "json"

	// DBDriver selects the ledger backend: "sqlite", "postgres", "pgx",
	// "file" (JSON journal at DatabaseURL) or "memory".
	DBDriver    string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// ArchiveBackend selects where reports are archived: "", "fs", "s3", "gcs".
	ArchiveBackend  string
	ArchiveLocation string // directory for fs, bucket for s3/gcs
	ArchiveRegion   string
	ArchiveEndpoint string // custom S3 endpoint (MinIO, LocalStack)

	OTelEnabled  bool
	OTLPEndpoint string

	RateLimit     float64 // requests per second, 0 disables
	RateBurst     int
	EngineProfile string // optional YAML path, see LoadEngineProfile
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:            env("PORT", "8080"),
		LogLevel:        env("LOG_LEVEL", "INFO"),
		LogFormat:       env("LOG_FORMAT", "text"),
		DBDriver:        env("DB_DRIVER", "sqlite"),
		DatabaseURL:     env("DATABASE_URL", "coffeechain.db"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         envInt("REDIS_DB", 0),
		CacheTTL:        envDuration("CACHE_TTL", 5*time.Minute),
		ArchiveBackend:  os.Getenv("ARCHIVE_BACKEND"),
		ArchiveLocation: env("ARCHIVE_LOCATION", "reports"),
		ArchiveRegion:   env("ARCHIVE_REGION", "us-east-1"),
		ArchiveEndpoint: os.Getenv("ARCHIVE_ENDPOINT"),
		OTelEnabled:     os.Getenv("OTEL_ENABLED") == "true",
		OTLPEndpoint:    env("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		RateLimit:       envFloat("RATE_LIMIT", 20),
		RateBurst:       envInt("RATE_BURST", 40),
		EngineProfile:   os.Getenv("ENGINE_PROFILE"),
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return def
}
