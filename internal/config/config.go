package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Dataset source kinds.
const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

// Config holds all configuration for the InsightX server and CLI.
type Config struct {
	Server   ServerConfig
	Data     DataConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port           int
	Env            string
	RequestTimeout time.Duration
}

type DataConfig struct {
	Source string
	Path   string
	Sheet  string
	Table  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL      string
	CacheTTL time.Duration
}

type AuthConfig struct {
	APIKeyHashes    []string
	RateLimitPerMin int
}

// LoadEnvFiles loads ENV_FILE when set, otherwise .env if present. Variables
// already in the environment win. Missing files are not an error.
func LoadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           envInt("INSIGHTX_PORT", 8080),
			Env:            envString("INSIGHTX_ENV", "development"),
			RequestTimeout: envDuration("REQUEST_TIMEOUT", 30*time.Second),
		},
		Data: DataConfig{
			Source: strings.ToLower(envString("DATA_SOURCE", SourceFile)),
			Path:   envString("DATA_PATH", "./data/transactions.csv"),
			Sheet:  os.Getenv("DATA_SHEET"),
			Table:  envString("DATA_TABLE", "transactions"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 5),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 1),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:      os.Getenv("REDIS_URL"),
			CacheTTL: envDuration("CACHE_TTL", 5*time.Minute),
		},
		Auth: AuthConfig{
			APIKeyHashes:    envList("API_KEY_HASHES"),
			RateLimitPerMin: envInt("RATE_LIMIT_PER_MIN", 10),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("INSIGHTX_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	switch c.Data.Source {
	case SourceFile:
		if c.Data.Path == "" {
			return fmt.Errorf("DATA_PATH is required when DATA_SOURCE is file")
		}
	case SourcePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATA_SOURCE is postgres")
		}
		if c.Data.Table == "" {
			return fmt.Errorf("DATA_TABLE is required when DATA_SOURCE is postgres")
		}
	default:
		return fmt.Errorf("DATA_SOURCE must be one of file, postgres; got %q", c.Data.Source)
	}

	if c.Redis.URL != "" && !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}
	if c.Redis.CacheTTL < 0 {
		return fmt.Errorf("CACHE_TTL must not be negative")
	}

	if c.Auth.RateLimitPerMin <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MIN must be positive, got %d", c.Auth.RateLimitPerMin)
	}
	for _, h := range c.Auth.APIKeyHashes {
		if !strings.HasPrefix(h, "$2") {
			return fmt.Errorf("API_KEY_HASHES must contain bcrypt hashes")
		}
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

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
