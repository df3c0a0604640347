package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig
	DB         DBConfig
	Log        LogConfig
	Rewards    RewardsConfig
	Redemption RedemptionConfig
	Events     EventsConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port            string `envconfig:"SERVER_PORT" default:"3000"`
	ShutdownTimeout int    `envconfig:"SHUTDOWN_TIMEOUT" default:"30"` // seconds
}

// DBConfig holds database-related configuration.
// WARNING: Default password is for local development only.
// In production, always set DB_PASSWORD via environment variable.
// In production, set DB_SSLMODE to "require" or "verify-full".
type DBConfig struct {
	Host        string `envconfig:"DB_HOST" default:"localhost"`
	Port        int    `envconfig:"DB_PORT" default:"5432"`
	User        string `envconfig:"DB_USER" default:"postgres"`
	Password    string `envconfig:"DB_PASSWORD" default:"postgres"` // CHANGE IN PRODUCTION
	Name        string `envconfig:"DB_NAME" default:"rcn_db"`
	SSLMode     string `envconfig:"DB_SSLMODE" default:"disable"` // Use "require" in production
	MaxConns    int    `envconfig:"DB_MAX_CONNS" default:"25"`
	MinConns    int    `envconfig:"DB_MIN_CONNS" default:"5"`
	AutoMigrate bool   `envconfig:"DB_AUTO_MIGRATE" default:"true"`
}

// DSN returns the PostgreSQL connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d&pool_min_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode, c.MaxConns, c.MinConns)
}

// LogConfig holds logging configuration.
// When File is set, JSON logs are also written to a rotated file.
type LogConfig struct {
	Level          string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty         bool   `envconfig:"LOG_PRETTY" default:"false"`
	File           string `envconfig:"LOG_FILE"`
	FileMaxSizeMB  int    `envconfig:"LOG_FILE_MAX_SIZE_MB" default:"100"`
	FileMaxBackups int    `envconfig:"LOG_FILE_MAX_BACKUPS" default:"5"`
	FileMaxAgeDays int    `envconfig:"LOG_FILE_MAX_AGE_DAYS" default:"28"`
}

// RewardsConfig holds the earning caps applied to base rewards.
type RewardsConfig struct {
	DailyCap   int64 `envconfig:"REWARD_DAILY_CAP" default:"40"`
	MonthlyCap int64 `envconfig:"REWARD_MONTHLY_CAP" default:"500"`
}

// RedemptionConfig holds redemption session settings.
type RedemptionConfig struct {
	SessionTTL       time.Duration `envconfig:"REDEMPTION_SESSION_TTL" default:"10m"`
	SweepInterval    time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"1m"` // 0 disables the sweeper
	CrossShopPercent int64         `envconfig:"CROSS_SHOP_PERCENT" default:"20"`
	// Refuse rejections that carry no customer signature.
	RequireSignedReject bool `envconfig:"REDEMPTION_REQUIRE_SIGNED_REJECT" default:"false"`
}

// EventsConfig holds settings for the outbound domain event stream.
// An empty AMQPURL means events are only logged.
type EventsConfig struct {
	AMQPURL    string `envconfig:"EVENTS_AMQP_URL"`
	Exchange   string `envconfig:"EVENTS_EXCHANGE" default:"rcn.events"`
	BufferSize int    `envconfig:"EVENTS_BUFFER_SIZE" default:"1024"`
	Source     string `envconfig:"EVENTS_SOURCE" default:"rcn-engine"`
}

// Load parses environment variables into the Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that envconfig cannot express as tags.
func (c *Config) Validate() error {
	if c.Rewards.DailyCap <= 0 || c.Rewards.MonthlyCap <= 0 {
		return errors.New("config: reward caps must be positive")
	}
	if c.Redemption.SessionTTL <= 0 {
		return errors.New("config: REDEMPTION_SESSION_TTL must be positive")
	}
	if c.Redemption.SweepInterval < 0 {
		return errors.New("config: SESSION_SWEEP_INTERVAL must not be negative")
	}
	if c.Redemption.CrossShopPercent < 0 || c.Redemption.CrossShopPercent > 100 {
		return errors.New("config: CROSS_SHOP_PERCENT must be between 0 and 100")
	}
	if c.Events.BufferSize <= 0 {
		return errors.New("config: EVENTS_BUFFER_SIZE must be positive")
	}
	return nil
}
