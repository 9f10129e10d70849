package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Links     LinksConfig
	App       AppConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"SERVER_PORT" required:"true"`
	Host            string        `envconfig:"SERVER_HOST" required:"true"`
	BaseURL         string        `envconfig:"SERVER_BASE_URL" required:"true"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" required:"true"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" required:"true"`
	IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" required:"true"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" required:"true"`
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST" required:"true"`
	Port     string `envconfig:"DB_PORT" required:"true"`
	User     string `envconfig:"DB_USER" required:"true"`
	Password string `envconfig:"DB_PASSWORD" required:"true"`
	Name     string `envconfig:"DB_NAME" required:"true"`
	SSLMode  string `envconfig:"DB_SSLMODE" required:"true"`
	MaxConns int32  `envconfig:"DB_MAX_CONNS" required:"true"`
	MinConns int32  `envconfig:"DB_MIN_CONNS" required:"true"`
}

// Validate validates the database configuration.
func (c *DatabaseConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.User == "" {
		return fmt.Errorf("user cannot be empty")
	}
	if c.Password == "" {
		return fmt.Errorf("password cannot be empty")
	}
	if c.Name == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("max connections must be positive")
	}
	if c.MinConns <= 0 {
		return fmt.Errorf("min connections must be positive")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("min connections (%d) cannot be greater than max connections (%d)", c.MinConns, c.MaxConns)
	}

	validSSLModes := map[string]bool{
		"disable":     true,
		"require":     true,
		"verify-ca":   true,
		"verify-full": true,
	}
	if !validSSLModes[c.SSLMode] {
		return fmt.Errorf("invalid SSL mode: %s (must be one of: disable, require, verify-ca, verify-full)", c.SSLMode)
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig holds the connection settings for the cache and rate-limit store.
type RedisConfig struct {
	URL string `envconfig:"REDIS_URL" required:"true"`
}

// Validate validates the Redis configuration.
func (c *RedisConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("redis URL cannot be empty")
	}
	return nil
}

// RateLimitConfig tunes the fixed-window limiter on the write API.
type RateLimitConfig struct {
	Limit  int           `envconfig:"RATE_LIMIT_MAX" default:"30"`
	Window time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// Validate validates the rate-limit configuration.
func (c *RateLimitConfig) Validate() error {
	if c.Limit <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	if c.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}
	return nil
}

// LinksConfig holds link-domain settings.
type LinksConfig struct {
	DefaultDomain   string `envconfig:"DEFAULT_DOMAIN_HOSTNAME" required:"true"`
	SlugLength      int    `envconfig:"SLUG_LENGTH" default:"7"`
	SlugMaxAttempts int    `envconfig:"SLUG_MAX_ATTEMPTS" default:"10"`
}

// Validate validates the links configuration.
func (c *LinksConfig) Validate() error {
	if c.DefaultDomain == "" {
		return fmt.Errorf("default domain hostname cannot be empty")
	}
	if c.SlugLength <= 0 {
		return fmt.Errorf("slug length must be positive")
	}
	if c.SlugMaxAttempts <= 0 {
		return fmt.Errorf("slug max attempts must be positive")
	}
	return nil
}

// AppConfig holds application-specific configuration.
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" required:"true"`   // development, staging, production, test
	LogLevel    string `envconfig:"LOG_LEVEL" required:"true"` // debug, info, warn, error
}

// Validate validates the app configuration.
func (c *AppConfig) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
		"test":        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s (must be one of: development, staging, production, test)", c.Environment)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}
	return nil
}

// Load loads configuration from environment variables only.
// (Do .env loading in cmd/server/main.go for dev, not here.)
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process("", &cfg.Server); err != nil {
		return nil, fmt.Errorf("failed to load Server config: %w", err)
	}
	if err := cfg.Server.Validate(); err != nil {
		return nil, fmt.Errorf("invalid Server config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to load Database config: %w", err)
	}
	if err := cfg.Database.Validate(); err != nil {
		return nil, fmt.Errorf("invalid Database config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Redis); err != nil {
		return nil, fmt.Errorf("failed to load Redis config: %w", err)
	}
	if err := cfg.Redis.Validate(); err != nil {
		return nil, fmt.Errorf("invalid Redis config: %w", err)
	}

	if err := envconfig.Process("", &cfg.RateLimit); err != nil {
		return nil, fmt.Errorf("failed to load RateLimit config: %w", err)
	}
	if err := cfg.RateLimit.Validate(); err != nil {
		return nil, fmt.Errorf("invalid RateLimit config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Links); err != nil {
		return nil, fmt.Errorf("failed to load Links config: %w", err)
	}
	if err := cfg.Links.Validate(); err != nil {
		return nil, fmt.Errorf("invalid Links config: %w", err)
	}

	if err := envconfig.Process("", &cfg.App); err != nil {
		return nil, fmt.Errorf("failed to load App config: %w", err)
	}
	if err := cfg.App.Validate(); err != nil {
		return nil, fmt.Errorf("invalid App config: %w", err)
	}

	return cfg, nil
}
