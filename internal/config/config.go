// Package config provides configuration management for Scribe.
// It loads settings from environment variables with the SCRIBE_ prefix
// and provides sensible defaults for all configuration options.
//
// The retention policy can additionally come from a YAML file named by
// SCRIBE_RETENTION_POLICY; see LoadRetentionPolicy.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/carverlabs/scribe/internal/connections"
	"github.com/carverlabs/scribe/internal/retention"
)

// Config holds all configuration settings for the Scribe application.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Security  SecurityConfig
	Pipeline  PipelineConfig
	Archive   ArchiveConfig
	Retention RetentionConfig
	Watch     WatchConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 7171)
	Host string // Server host (default: 127.0.0.1)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	Engine           string // Storage engine type: sqlite, postgres (default: sqlite)
	DataPath         string // Path to data directory for sqlite (default: ./data)
	PostgresDSN      string // Full postgres DSN; overrides the individual fields below
	PostgresHost     string // Postgres host (default: localhost)
	PostgresPort     int    // Postgres port (default: 5432)
	PostgresUser     string // Postgres user (default: scribe)
	PostgresPassword string // Postgres password
	PostgresDatabase string // Postgres database name (default: scribe)
	PostgresSSLMode  string // Postgres sslmode (default: disable)
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode string // Security mode: development, production (default: development)
	APIToken     string // API authentication token
}

// PipelineConfig contains routing pipeline configuration.
type PipelineConfig struct {
	RouteInterval  time.Duration // Time between routing cycles (default: 5m)
	RouteBatchSize int           // Staging rows claimed per cycle (default: 50)
	CycleTimeout   time.Duration // Upper bound on a single routing cycle (default: 2m)
}

// ArchiveConfig contains session archival configuration.
type ArchiveConfig struct {
	Interval     time.Duration // Time between archival cycles (default: 1h)
	BatchSize    int           // Sessions cleaned per cycle (default: 20)
	CleanDwell   time.Duration // Age before an extracted session is cleaned (default: 48h)
	ArchiveDwell time.Duration // Additional age before a cleaned session is archived (default: 24h)
}

// RetentionConfig contains retention policy configuration.
type RetentionConfig struct {
	PolicyFile string // Path to a YAML retention policy; empty uses the built-in defaults
}

// WatchConfig contains filesystem event watcher configuration.
type WatchConfig struct {
	EventDir string // Directory watched for .event files; empty disables the watcher
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the SCRIBE_ prefix.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("SCRIBE_PORT", 7171),
			Host: getEnv("SCRIBE_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			Engine:           getEnv("SCRIBE_STORAGE_ENGINE", "sqlite"),
			DataPath:         getEnv("SCRIBE_DATA_PATH", "./data"),
			PostgresDSN:      getEnv("SCRIBE_POSTGRES_DSN", ""),
			PostgresHost:     getEnv("SCRIBE_POSTGRES_HOST", "localhost"),
			PostgresPort:     getEnvInt("SCRIBE_POSTGRES_PORT", 5432),
			PostgresUser:     getEnv("SCRIBE_POSTGRES_USER", "scribe"),
			PostgresPassword: getEnv("SCRIBE_POSTGRES_PASSWORD", ""),
			PostgresDatabase: getEnv("SCRIBE_POSTGRES_DB", "scribe"),
			PostgresSSLMode:  getEnv("SCRIBE_POSTGRES_SSLMODE", "disable"),
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("SCRIBE_SECURITY_MODE", "development"),
			APIToken:     getEnv("SCRIBE_API_TOKEN", ""),
		},
		Pipeline: PipelineConfig{
			RouteInterval:  getEnvDuration("SCRIBE_ROUTE_INTERVAL", 5*time.Minute),
			RouteBatchSize: getEnvInt("SCRIBE_ROUTE_BATCH_SIZE", 50),
			CycleTimeout:   getEnvDuration("SCRIBE_CYCLE_TIMEOUT", 2*time.Minute),
		},
		Archive: ArchiveConfig{
			Interval:     getEnvDuration("SCRIBE_ARCHIVE_INTERVAL", time.Hour),
			BatchSize:    getEnvInt("SCRIBE_ARCHIVE_BATCH_SIZE", 20),
			CleanDwell:   getEnvDuration("SCRIBE_CLEAN_DWELL", 48*time.Hour),
			ArchiveDwell: getEnvDuration("SCRIBE_ARCHIVE_DWELL", 24*time.Hour),
		},
		Retention: RetentionConfig{
			PolicyFile: getEnv("SCRIBE_RETENTION_POLICY", ""),
		},
		Watch: WatchConfig{
			EventDir: getEnv("SCRIBE_EVENT_DIR", ""),
		},
	}
	return cfg, nil
}

// DatabaseConfig translates the storage section into the connection settings
// used by connections.Open.
func (c *Config) DatabaseConfig() connections.DatabaseConfig {
	return connections.DatabaseConfig{
		Engine:   c.Storage.Engine,
		Path:     filepath.Join(c.Storage.DataPath, "scribe.db"),
		DSN:      c.Storage.PostgresDSN,
		Host:     c.Storage.PostgresHost,
		Port:     c.Storage.PostgresPort,
		Username: c.Storage.PostgresUser,
		Password: c.Storage.PostgresPassword,
		Database: c.Storage.PostgresDatabase,
		SSLMode:  c.Storage.PostgresSSLMode,
	}
}

// retentionPolicyFile is the on-disk shape of a retention policy:
//
//	windows:
//	  sessions: 30
//	  knowledge: 90
type retentionPolicyFile struct {
	Windows map[string]int `yaml:"windows"`
}

// LoadRetentionPolicy reads a retention policy from the YAML file at path.
// An empty path returns the built-in default policy. The loaded policy is
// validated before it is returned.
func LoadRetentionPolicy(path string) (retention.Policy, error) {
	if path == "" {
		return retention.DefaultPolicy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read retention policy: %w", err)
	}

	var file retentionPolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: failed to parse retention policy %s: %w", path, err)
	}
	if len(file.Windows) == 0 {
		return nil, fmt.Errorf("config: retention policy %s defines no windows", path)
	}

	policy := retention.Policy(file.Windows)
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("config: retention policy %s: %w", path, err)
	}
	return policy, nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns a
// default value. If the environment variable exists but cannot be parsed
// by time.ParseDuration, it returns the default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
