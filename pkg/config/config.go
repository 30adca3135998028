// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/docket/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Audit         AuditConfig
	Observability ObservabilityConfig

	// SeedFile is an optional YAML route model catalog loaded at startup.
	SeedFile string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// RedisConfig holds the rate limiter backend settings. An empty address
// disables rate limiting.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuditConfig holds audit trail retention settings.
type AuditConfig struct {
	RetentionDays   int
	CleanupSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("DOCKET_HOST", "0.0.0.0"),
			Port:            getEnv("DOCKET_PORT", "8080"),
			ReadTimeout:     getEnvDuration("DOCKET_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("DOCKET_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("DOCKET_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("DOCKET_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("DOCKET_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:          getEnv("DOCKET_POSTGRES_URL", ""),
			MaxOpenConns: getEnvInt("DOCKET_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns: getEnvInt("DOCKET_POSTGRES_IDLE_CONNS", 5),
			ConnLifetime: getEnvDuration("DOCKET_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("DOCKET_REDIS_ADDR", ""),
			Password: getEnv("DOCKET_REDIS_PASSWORD", ""),
			DB:       getEnvInt("DOCKET_REDIS_DB", 0),
		},
		Audit: AuditConfig{
			RetentionDays:   getEnvInt("DOCKET_AUDIT_RETENTION_DAYS", 365),
			CleanupSchedule: getEnv("DOCKET_AUDIT_CLEANUP_SCHEDULE", "0 3 * * *"),
		},
		Observability: ObservabilityConfig{
			LogLevel:           observability.ParseLogLevel(getEnv("DOCKET_LOG_LEVEL", "info")),
			MetricsEnabled:     getEnvBool("DOCKET_METRICS_ENABLED", true),
			OTelEnabled:        getEnvBool("DOCKET_OTEL_ENABLED", false),
			OTelEndpoint:       getEnv("DOCKET_OTEL_ENDPOINT", "localhost:4317"),
			OTelServiceName:    getEnv("DOCKET_OTEL_SERVICE_NAME", "docket"),
			OTelServiceVersion: getEnv("DOCKET_OTEL_SERVICE_VERSION", "1.0.0"),
			OTelInsecure:       getEnvBool("DOCKET_OTEL_INSECURE", true),
		},
		SeedFile: getEnv("DOCKET_SEED_FILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Audit.RetentionDays <= 0 {
		return fmt.Errorf("audit retention must be positive")
	}
	return nil
}

// Addr returns the server address in host:port format
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// HealthAddr returns the health server address in host:port format
func (c *ServerConfig) HealthAddr() string {
	return c.Host + ":" + c.HealthPort
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
