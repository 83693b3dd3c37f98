package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Session      SessionConfig      `mapstructure:"session"`
	Policy       PolicyConfig       `mapstructure:"policy"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Log          LogConfig          `mapstructure:"log"`
	Recovery     RecoveryConfig     `mapstructure:"recovery"`
	Events       EventsConfig       `mapstructure:"events"`
	Worker       WorkerConfig       `mapstructure:"worker"`
	Registration RegistrationConfig `mapstructure:"registration"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// URL returns the connection string in the form golang-migrate expects.
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	URL          string `mapstructure:"url"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	MaxRetries   int    `mapstructure:"max_retries"`
}

type SessionConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type PolicyConfig struct {
	DefaultLimitDays int           `mapstructure:"default_limit_days"`
	ProtectedRole    string        `mapstructure:"protected_role"`
	Timezone         string        `mapstructure:"timezone"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
}

// RegistrationConfig controls public sign-up. DefaultRole is the only role a
// self-registered account receives.
type RegistrationConfig struct {
	DefaultRole string `mapstructure:"default_role"`
}

// Location resolves Timezone, falling back to UTC.
func (c PolicyConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type RecoveryConfig struct {
	LoginURL string `mapstructure:"login_url"`
}

type EventsConfig struct {
	Channel string `mapstructure:"channel"`
}

// WorkerConfig drives cmd/worker.
type WorkerConfig struct {
	TokenCleanupInterval time.Duration `mapstructure:"token_cleanup_interval"`
	TokenRetention       time.Duration `mapstructure:"token_retention"`
	HealthPort           int           `mapstructure:"health_port"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "expass")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.max_retries", 3)

	v.SetDefault("session.secret", "")
	v.SetDefault("session.ttl", 24*time.Hour)

	v.SetDefault("policy.default_limit_days", 90)
	v.SetDefault("policy.protected_role", "administrator")
	v.SetDefault("policy.timezone", "UTC")
	v.SetDefault("policy.cache_ttl", time.Minute)

	v.SetDefault("registration.default_role", "subscriber")

	v.SetDefault("rate_limit.requests_per_second", 5)
	v.SetDefault("rate_limit.burst", 10)

	v.SetDefault("log.level", "info")

	v.SetDefault("recovery.login_url", "/login")
	v.SetDefault("events.channel", "expass.events")

	v.SetDefault("worker.token_cleanup_interval", time.Hour)
	v.SetDefault("worker.token_retention", 24*time.Hour)
	v.SetDefault("worker.health_port", 8081)
}

// LoadConfig reads config.yaml (optional) and EXPASS_* environment variables.
// With ENV=dev a .env file is loaded into the environment first.
func LoadConfig() (*Config, error) {
	if os.Getenv("ENV") == "dev" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app/config")

	v.SetEnvPrefix("EXPASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Session.Secret == "" {
		return nil, errors.New("session.secret is required")
	}
	if config.Registration.DefaultRole != "" && strings.EqualFold(config.Registration.DefaultRole, config.Policy.ProtectedRole) {
		return nil, fmt.Errorf("registration.default_role must not be the protected role %q", config.Policy.ProtectedRole)
	}

	return &config, nil
}
