package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	ServerPort int    `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	DBDriver    string `env:"DB_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"storefront.db"`

	JWTSecret     string `env:"JWT_SECRET"`
	RefreshSecret string `env:"REFRESH_SECRET"`
	SecureCookies bool   `env:"SECURE_COOKIES" envDefault:"false"`

	CatalogURL      string        `env:"CATALOG_URL" envDefault:"https://dummyjson.com"`
	CatalogTimeout  time.Duration `env:"CATALOG_TIMEOUT" envDefault:"3s"`
	CatalogPageSize int           `env:"CATALOG_PAGE_SIZE" envDefault:"20"`

	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	GuestSessionTTL time.Duration `env:"GUEST_SESSION_TTL" envDefault:"24h"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	HandoffPolicy string `env:"CART_HANDOFF_POLICY" envDefault:"account_wins"`

	// Requests per second per client IP on /login and /register.
	AuthRateLimit float64 `env:"AUTH_RATE_LIMIT" envDefault:"0.2"`
	AuthRateBurst int     `env:"AUTH_RATE_BURST" envDefault:"5"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == DriverSQLite {
		return c.SQLitePath
	}
	return c.DatabaseURL
}

func (c *Config) validate() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid SERVER_PORT: %d", c.ServerPort)
	}
	switch c.DBDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("missing required env DATABASE_URL")
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	if c.JWTSecret == "" {
		return errors.New("missing required env JWT_SECRET")
	}
	if c.RefreshSecret == "" {
		return errors.New("missing required env REFRESH_SECRET")
	}
	if c.CatalogTimeout <= 0 {
		return fmt.Errorf("CATALOG_TIMEOUT must be positive, got %s", c.CatalogTimeout)
	}
	if c.CatalogPageSize < 1 {
		return fmt.Errorf("CATALOG_PAGE_SIZE must be positive, got %d", c.CatalogPageSize)
	}
	if c.AuthRateLimit <= 0 || c.AuthRateBurst < 1 {
		return fmt.Errorf("AUTH_RATE_LIMIT and AUTH_RATE_BURST must be positive")
	}
	switch c.HandoffPolicy {
	case "account_wins", "merge":
	default:
		return fmt.Errorf("unknown CART_HANDOFF_POLICY %q", c.HandoffPolicy)
	}
	return nil
}
