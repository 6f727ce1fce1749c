// Package config provides configuration loading for the workbench service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the workbench service.
type Config struct {
	// Server configuration
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	ShutdownGrace time.Duration

	// Store backend for workflows, node metadata and presets
	StoreType string // "memory" or "redis"

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Node metadata catalog
	CatalogPath  string // file path or artifact URI; empty = start empty
	CatalogWatch bool
	CacheSize    int

	// Artifact backend for workflow export/import
	ArtifactBackend string // "memory", "s3" or "minio"
	ArtifactPrefix  string
	S3Endpoint      string
	S3Bucket        string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3UseSSL        bool

	// Auth configuration
	AuthEnabled        bool
	OIDCIssuer         string
	OIDCClientID       string
	ServiceTokenSecret string
	RequiredRoles      []string

	// CORS configuration
	CORSOrigins []string

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// Tracing
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		// Server
		Port:          getEnv("PORT", "7080"),
		ReadTimeout:   getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:  getDuration("WRITE_TIMEOUT", 30*time.Second),
		ShutdownGrace: getDuration("SHUTDOWN_GRACE", 10*time.Second),

		StoreType: getEnv("WORKBENCH_STORE", "memory"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		// Catalog
		CatalogPath:  getEnv("WORKBENCH_CATALOG", ""),
		CatalogWatch: getBool("WORKBENCH_CATALOG_WATCH", false),
		CacheSize:    getInt("WORKBENCH_SCHEMA_CACHE_SIZE", 512),

		// Artifacts
		ArtifactBackend: getEnv("ARTIFACT_BACKEND", "memory"),
		ArtifactPrefix:  getEnv("ARTIFACT_PREFIX", "workbench"),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Region:        getEnv("S3_REGION", "us-east-1"),
		S3AccessKey:     getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretKey:     getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3UseSSL:        getBool("S3_USE_SSL", true),

		// Auth
		AuthEnabled:        getBool("AUTH_ENABLED", false),
		OIDCIssuer:         getEnv("OIDC_ISSUER", ""),
		OIDCClientID:       getEnv("OIDC_CLIENT_ID", ""),
		ServiceTokenSecret: getEnv("SERVICE_TOKEN_SECRET", ""),
		RequiredRoles:      getStringSlice("AUTH_REQUIRED_ROLES", nil),

		// CORS
		CORSOrigins: getStringSlice("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),

		// Rate limiting
		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 100.0),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", 200),

		// Tracing
		TracingEnabled:    getBool("OTEL_ENABLED", false),
		OTLPEndpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getFloat("OTEL_SAMPLE_RATE", 1.0),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// Validate reports configuration combinations the service cannot start with.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreType {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("WORKBENCH_STORE: unknown store %q", c.StoreType))
	}

	switch c.ArtifactBackend {
	case "memory":
	case "s3", "minio":
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for the s3 artifact backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("ARTIFACT_BACKEND: unknown backend %q", c.ArtifactBackend))
	}

	if c.AuthEnabled && c.OIDCIssuer == "" && c.ServiceTokenSecret == "" {
		errs = append(errs, errors.New("AUTH_ENABLED requires OIDC_ISSUER or SERVICE_TOKEN_SECRET"))
	}
	if c.OIDCIssuer != "" && c.OIDCClientID == "" {
		errs = append(errs, errors.New("OIDC_CLIENT_ID is required with OIDC_ISSUER"))
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}

	return errors.Join(errs...)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultVal
}
