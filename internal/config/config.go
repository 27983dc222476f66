package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

type PostgresConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     string `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"postgres"`
	Password string `env:"PASSWORD" envDefault:"postgres"`
	DB       string `env:"DB" envDefault:"clubdesk"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
}

// URL assembles a postgres:// connection string.
func (p PostgresConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%s", p.Host, p.Port),
		Path:     p.DB,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}

type Config struct {
	Env  string `env:"APP_ENV" envDefault:"development"`
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"HTTP_PORT" envDefault:"8000"`

	DBDriver  string         `env:"DB_DRIVER" envDefault:"postgres"`
	Postgres  PostgresConfig `envPrefix:"POSTGRES_"`
	SQLiteDSN string         `env:"SQLITE_DSN" envDefault:"file:clubdesk.db?_pragma=busy_timeout(5000)"`

	JWTSecret          string `env:"JWT_SECRET,required"`
	AccessTokenMinutes int    `env:"ACCESS_TOKEN_EXPIRE_MINUTES" envDefault:"1440"`
	EncryptKey         string `env:"ENCRYPTION_KEY,required"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"`
	Debug       bool     `env:"DEBUG" envDefault:"false"`

	RecipientBatchSize int           `env:"RECIPIENT_BATCH_SIZE" envDefault:"500"`
	RedisURL           string        `env:"REDIS_URL"`
	ReconcileInterval  time.Duration `env:"RECONCILE_INTERVAL" envDefault:"0s"`
	ReconcileGrace     time.Duration `env:"RECONCILE_GRACE" envDefault:"5m"`
	SendRatePerSec     float64       `env:"SEND_RATE_PER_SEC" envDefault:"2"`
	SendBurst          int           `env:"SEND_BURST" envDefault:"5"`
}

// Load reads configuration from the process environment, after loading a
// .env file from the working directory when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return parse(env.Options{})
}

// LoadFrom reads configuration from the given variables only.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	origins := cfg.CORSOrigins[:0]
	for _, o := range cfg.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.CORSOrigins = origins

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	if c.RecipientBatchSize <= 0 {
		return errors.New("RECIPIENT_BATCH_SIZE must be positive")
	}
	if c.ReconcileInterval < 0 || c.ReconcileGrace < 0 {
		return errors.New("reconcile durations must not be negative")
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenMinutes) * time.Minute
}
