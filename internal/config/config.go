package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the HabitVault server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Pipeline PipelineConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type StorageConfig struct {
	Dir string
}

type PipelineConfig struct {
	Workers      int
	QueueSize    int
	MaxRetries   int
	RetryDelays  []time.Duration
	StageTimeout time.Duration
	EncryptKey   string
}

// defaultRetryDelays is the backoff table indexed by retry count.
// Monotonically increasing with a plateau at the last tier.
var defaultRetryDelays = []time.Duration{
	30 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
	30 * time.Minute,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("HABITVAULT_PORT", 8080),
			Env:  envString("HABITVAULT_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Storage: StorageConfig{
			Dir: envString("STORAGE_DIR", "data/artifacts"),
		},
		Pipeline: PipelineConfig{
			Workers:      envInt("PIPELINE_WORKERS", 4),
			QueueSize:    envInt("PIPELINE_QUEUE_SIZE", 64),
			MaxRetries:   envInt("PIPELINE_MAX_RETRIES", 3),
			RetryDelays:  envDelays("PIPELINE_RETRY_DELAYS", defaultRetryDelays),
			StageTimeout: envDuration("PIPELINE_STAGE_TIMEOUT", 5*time.Minute),
			EncryptKey:   os.Getenv("PIPELINE_ENCRYPT_KEY"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Storage.Dir == "" {
		return fmt.Errorf("STORAGE_DIR must not be empty")
	}

	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("PIPELINE_WORKERS must be at least 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("PIPELINE_MAX_RETRIES must not be negative, got %d", c.Pipeline.MaxRetries)
	}
	if len(c.Pipeline.RetryDelays) == 0 {
		return fmt.Errorf("PIPELINE_RETRY_DELAYS must contain at least one delay")
	}
	for i := 1; i < len(c.Pipeline.RetryDelays); i++ {
		if c.Pipeline.RetryDelays[i] < c.Pipeline.RetryDelays[i-1] {
			return fmt.Errorf("PIPELINE_RETRY_DELAYS must be non-decreasing")
		}
	}
	if c.Pipeline.EncryptKey != "" && len(c.Pipeline.EncryptKey) != 32 {
		return fmt.Errorf("PIPELINE_ENCRYPT_KEY must be exactly 32 bytes, got %d", len(c.Pipeline.EncryptKey))
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// envDelays parses a comma-separated list of durations, e.g. "30s,2m,10m".
func envDelays(key string, defaultVal []time.Duration) []time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var delays []time.Duration
	for _, part := range strings.Split(v, ",") {
		d, err := time.ParseDuration(strings.TrimSpace(part))
		if err != nil {
			return defaultVal
		}
		delays = append(delays, d)
	}
	return delays
}
