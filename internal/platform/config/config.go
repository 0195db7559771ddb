// Package config loads process configuration from the environment,
// with an optional .env file for local runs.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	URL               string        `env:"DATABASE_URL,required"`
	MaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"25"`
	MinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"5"`
	MaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	MaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	HealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`
}

// TelegramConfig holds MTProto API settings. The credential pair is a
// fallback; pairs stored in the database take precedence.
type TelegramConfig struct {
	APIID           int           `env:"TELEGRAM_API_ID"`
	APIHash         string        `env:"TELEGRAM_API_HASH"`
	Phone           string        `env:"TELEGRAM_PHONE"`
	SessionPath     string        `env:"TG_SESSION_PATH" envDefault:"./tg.session"`
	DefaultChannels []string      `env:"DEFAULT_CHANNELS" envSeparator:","`
	PollInterval    time.Duration `env:"MONITOR_POLL_INTERVAL" envDefault:"60s"`
	FetchLimit      int           `env:"MONITOR_FETCH_LIMIT" envDefault:"100"`
}

// APIConfig holds the REST server settings.
type APIConfig struct {
	ListenAddr             string `env:"API_LISTEN_ADDR" envDefault:":8000"`
	SecretSalt             string `env:"SECRET_SALT" envDefault:"change-me"`
	UsersFile              string `env:"USERS_FILE" envDefault:"users.json"`
	FrontendURL            string `env:"FRONTEND_URL"`
	PublicDashboardEnabled bool   `env:"PUBLIC_DASHBOARD_ENABLED" envDefault:"false"`
}

type Config struct {
	AppEnv        string        `env:"APP_ENV" envDefault:"local"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	HealthPort    int           `env:"HEALTH_PORT" envDefault:"8080"`
	EnvFile       string        `env:"ENV_FILE" envDefault:".env"`
	DedupInterval time.Duration `env:"DEDUP_INTERVAL" envDefault:"1h"`
	DedupMode     string        `env:"DEDUP_MODE" envDefault:"streaming"`

	// DedupStatsRetention bounds how long dedup_stats rows are kept.
	DedupStatsRetention time.Duration `env:"DEDUP_STATS_RETENTION" envDefault:"10h"`

	Database DatabaseConfig
	Telegram TelegramConfig
	API      APIConfig
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	return cfg, nil
}
