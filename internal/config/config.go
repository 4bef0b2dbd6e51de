package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	ServerPort     string `yaml:"port"`
	DatabaseType   string `yaml:"database_type"`
	DatabasePath   string `yaml:"database_path"`
	DatabaseURL    string `yaml:"database_url"`
	MigrationsPath string `yaml:"migrations_path"`

	// Live feed
	PollInterval   time.Duration `yaml:"poll_interval"`
	QueryChunkSize int           `yaml:"query_chunk_size"`

	// Dashboard sessions
	PreviewLimit   int           `yaml:"preview_limit"`
	SessionIdleTTL time.Duration `yaml:"session_idle_ttl"`
	RetainOnError  bool          `yaml:"retain_on_error"`

	// Auth
	TokenSecret     string        `yaml:"token_secret"`
	SessionDuration time.Duration `yaml:"session_duration"`

	// Alert e-mail, disabled when SESFromEmail is empty
	SESRegion    string `yaml:"ses_region"`
	SESFromEmail string `yaml:"ses_from_email"`

	LogLevel string `yaml:"log_level"`
}

// Load reads configuration from environment variables with sensible
// defaults, then overlays the YAML file named by CARECIRCLE_CONFIG if set.
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:      getEnv("PORT", "8080"),
		DatabaseType:    getEnv("DB_TYPE", "sqlite"),
		DatabasePath:    getEnv("DB_PATH", "./carecircle.db"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		MigrationsPath:  getEnv("MIGRATIONS_PATH", "./migrations"),
		PollInterval:    getEnvDuration("POLL_INTERVAL", 2*time.Second),
		QueryChunkSize:  getEnvInt("QUERY_CHUNK_SIZE", 30),
		PreviewLimit:    getEnvInt("PREVIEW_LIMIT", 5),
		SessionIdleTTL:  getEnvDuration("SESSION_IDLE_TTL", 10*time.Minute),
		RetainOnError:   getEnvBool("RETAIN_ON_ERROR", false),
		TokenSecret:     getEnv("TOKEN_SECRET", ""),
		SessionDuration: getEnvDuration("SESSION_DURATION", 24*time.Hour),
		SESRegion:       getEnv("SES_REGION", "us-east-1"),
		SESFromEmail:    getEnv("SES_FROM_EMAIL", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	if path := os.Getenv("CARECIRCLE_CONFIG"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path. Keys missing from the file keep
// their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.QueryChunkSize <= 0 {
		return fmt.Errorf("query chunk size must be positive, got %d", c.QueryChunkSize)
	}
	switch c.DatabaseType {
	case "postgres", "postgresql", "mysql":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for database type %s", c.DatabaseType)
		}
	}
	return nil
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
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
