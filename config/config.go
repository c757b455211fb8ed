package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	defaultJWTSecret = "change-me-in-production"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Env      string `env:"APP_ENV" envDefault:"development" validate:"oneof=development production"`
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Presence PresenceConfig
	Chat     ChatConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string `env:"PORT" envDefault:"3000" validate:"required,numeric"`
	ReadTimeout  int    `env:"READ_TIMEOUT_SEC" envDefault:"30" validate:"min=1"`
	WriteTimeout int    `env:"WRITE_TIMEOUT_SEC" envDefault:"30" validate:"min=1"`
	// Origins accepted in production; development accepts any origin.
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"https://fluffy-pegasus-5cb073.netlify.app,https://rbkwdjwubmmdqhfyyyvw.supabase.co"`
	// Built SPA served in production.
	StaticDir string `env:"STATIC_DIR" envDefault:"dist"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string `env:"DATABASE_URL"` // if set, used as-is
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName   string `env:"DB_NAME" envDefault:"simulive"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"10" validate:"min=0"`
}

// RedisConfig holds Redis connection settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0" validate:"min=0"`
}

// JWTConfig holds host token settings.
type JWTConfig struct {
	Secret      string `env:"JWT_SECRET" envDefault:"change-me-in-production" validate:"required"`
	ExpireHours int    `env:"JWT_EXPIRE_HOURS" envDefault:"24" validate:"min=1"`
}

// PresenceConfig tunes room tracking and the socket transport.
type PresenceConfig struct {
	SweepInterval  time.Duration `env:"PRESENCE_SWEEP_INTERVAL" envDefault:"60s" validate:"gt=0"`
	PollWait       time.Duration `env:"POLL_WAIT" envDefault:"25s" validate:"gt=0"`
	SessionTimeout time.Duration `env:"SESSION_TIMEOUT" envDefault:"60s" validate:"gt=0"`
}

// ChatConfig tunes chat flood control and history reads.
type ChatConfig struct {
	RateLimit    int           `env:"CHAT_RATE_LIMIT" envDefault:"20" validate:"min=0"`
	RateWindow   time.Duration `env:"CHAT_RATE_WINDOW" envDefault:"1m" validate:"gt=0"`
	HistoryLimit int           `env:"CHAT_HISTORY_LIMIT" envDefault:"500" validate:"min=1"`
}

// Production reports whether APP_ENV is production.
func (c *Config) Production() bool { return c.Env == EnvProduction }

// Addr returns the listen address.
func (c ServerConfig) Addr() string { return ":" + c.Port }

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env is optional

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and production-only requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if c.Production() {
		if c.JWT.Secret == defaultJWTSecret {
			return errors.New("validate config: JWT_SECRET must be set in production")
		}
		if len(c.Server.CORSAllowedOrigins) == 0 {
			return errors.New("validate config: CORS_ALLOWED_ORIGINS must not be empty in production")
		}
	}
	return nil
}
