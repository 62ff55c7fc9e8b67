package infra

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database. When neither DATABASE_URL nor RequirePostgres is set the
	// server runs on in-memory stores (dev mode).
	DatabaseURL     string `env:"DATABASE_URL"`
	RequirePostgres bool   `env:"REQUIRE_POSTGRES" envDefault:"false"`
	PGHost          string `env:"PGHOST" envDefault:"localhost"`
	PGPort          int    `env:"PGPORT" envDefault:"5432"`
	PGUser          string `env:"PGUSER" envDefault:"sportsbook"`
	PGPassword      string `env:"PGPASSWORD" envDefault:"sportsbook"`
	PGDatabase      string `env:"PGDATABASE" envDefault:"sportsbook"`

	// Connection pool sizing. The pool is shared by every actor, so
	// PG_MAX_CONNS caps concurrent persistence.
	PGMaxConns     int32         `env:"PG_MAX_CONNS" envDefault:"20"`
	PGMinConns     int32         `env:"PG_MIN_CONNS" envDefault:"2"`
	PGConnLifetime time.Duration `env:"PG_CONN_LIFETIME" envDefault:"30m"`
	PGConnIdleTime time.Duration `env:"PG_CONN_IDLE_TIME" envDefault:"5m"`

	// Server
	APIPort int `env:"API_PORT" envDefault:"8080"`

	// Kafka
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled bool   `env:"KAFKA_ENABLED" envDefault:"false"`

	// CORS
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Odds volatility
	VolatilityWindow  time.Duration `env:"VOLATILITY_WINDOW" envDefault:"5m"`
	VolatilityMedium  string        `env:"VOLATILITY_MEDIUM" envDefault:"10"`
	VolatilityHigh    string        `env:"VOLATILITY_HIGH" envDefault:"25"`
	VolatilityExtreme string        `env:"VOLATILITY_EXTREME" envDefault:"50"`

	// Cash-out
	CashoutMargin  string `env:"CASHOUT_MARGIN" envDefault:"0.95"`
	CashoutMinimum string `env:"CASHOUT_MINIMUM" envDefault:"0.01"`

	// Rate limiting
	RateLimit       int           `env:"RATE_LIMIT" envDefault:"60"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// UsePostgres reports whether the server should run against Postgres.
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != "" || c.RequirePostgres
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
