package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Queue     QueueConfig
	Telemetry TelemetryConfig
	Limits    LimitsConfig
	Guard     GuardConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host          string
	Port          int
	Database      string
	User          string
	Password      string
	MaxConns      int
	MinConns      int
	MaxIdleTime   time.Duration
	MaxLifetime   time.Duration
	MigrationsDir string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig holds in-process cache settings
type CacheConfig struct {
	Enabled    bool
	DefaultTTL time.Duration
}

// QueueConfig holds lifecycle event bus settings
type QueueConfig struct {
	Type  string // "memory" for now
	Topic string
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof bool
	PprofPort   int
	MetricsPort int
}

// LimitsConfig holds rate limit settings for mutation routes
type LimitsConfig struct {
	Enabled       bool
	UserPerMinute int64
}

// GuardConfig holds the optional publish guard expression
type GuardConfig struct {
	PublishExpression string
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:          getEnv("POSTGRES_HOST", "localhost"),
			Port:          getEnvInt("POSTGRES_PORT", 5432),
			Database:      getEnv("POSTGRES_DB", "contenthub"),
			User:          getEnv("POSTGRES_USER", "contenthub"),
			Password:      getEnv("POSTGRES_PASSWORD", "contenthub"),
			MaxConns:      getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:      getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime:   getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime:   getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
			MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", true),
			DefaultTTL: getEnvDuration("CACHE_DEFAULT_TTL", 1*time.Hour),
		},
		Queue: QueueConfig{
			Type:  getEnv("QUEUE_TYPE", "memory"),
			Topic: getEnv("LIFECYCLE_TOPIC", "content.lifecycle"),
		},
		Telemetry: TelemetryConfig{
			EnablePprof: getEnvBool("ENABLE_PPROF", true),
			PprofPort:   getEnvInt("PPROF_PORT", 6060),
			MetricsPort: getEnvInt("METRICS_PORT", 9090),
		},
		Limits: LimitsConfig{
			Enabled:       getEnvBool("RATE_LIMITS_ENABLED", false),
			UserPerMinute: int64(getEnvInt("RATE_LIMIT_USER_PER_MINUTE", 60)),
		},
		Guard: GuardConfig{
			PublishExpression: getEnv("PUBLISH_GUARD_EXPRESSION", ""),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Limits.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("rate limits require redis to be enabled")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
