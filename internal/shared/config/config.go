package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const EnvPrefix = "CUSTODIA_"

type Config struct {
	HTTP       HTTPConfig       `toml:"http" envPrefix:"HTTP_"`
	Admin      AdminConfig      `toml:"admin" envPrefix:"ADMIN_"`
	Log        LogConfig        `toml:"log" envPrefix:"LOG_"`
	Database   DatabaseConfig   `toml:"database" envPrefix:"DATABASE_"`
	App        AppConfig        `toml:"app" envPrefix:"APP_"`
	Cron       CronConfig       `toml:"cron" envPrefix:"CRON_"`
	Guard      GuardConfig      `toml:"guard" envPrefix:"GUARD_"`
	Onboarding OnboardingConfig `toml:"onboarding" envPrefix:"ONBOARDING_"`
	Dispatch   DispatchConfig   `toml:"dispatch" envPrefix:"DISPATCH_"`
	Scheduler  SchedulerConfig  `toml:"scheduler" envPrefix:"SCHEDULER_"`
	Mail       MailConfig       `toml:"mail" envPrefix:"MAIL_"`
}

type HTTPConfig struct {
	Addr string `toml:"addr" env:"ADDR"`
}

type AdminConfig struct {
	Addr string `toml:"addr" env:"ADDR"`
}

type LogConfig struct {
	Level  string `toml:"level" env:"LEVEL"`
	Format string `toml:"format" env:"FORMAT"`
}

type DatabaseConfig struct {
	Driver string `toml:"driver" env:"DRIVER"`
	DSN    string `toml:"dsn" env:"DSN"`
}

type AppConfig struct {
	BaseURL string `toml:"base_url" env:"BASE_URL"`
}

// CronConfig guards the job endpoints. Header alone is a marker, not a
// credential; Secret turns on signed requests.
type CronConfig struct {
	Header string `toml:"header" env:"HEADER"`
	Secret string `toml:"secret" env:"SECRET"`
}

type GuardConfig struct {
	CatchUpDays int `toml:"catch_up_days" env:"CATCH_UP_DAYS"`
}

type OnboardingConfig struct {
	Window time.Duration `toml:"window" env:"WINDOW"`
}

type DispatchConfig struct {
	BatchSize  int           `toml:"batch_size" env:"BATCH_SIZE"`
	StuckAfter time.Duration `toml:"stuck_after" env:"STUCK_AFTER"`
}

type SchedulerConfig struct {
	Enabled          bool          `toml:"enabled" env:"ENABLED"`
	GuardInterval    time.Duration `toml:"guard_interval" env:"GUARD_INTERVAL"`
	DispatchInterval time.Duration `toml:"dispatch_interval" env:"DISPATCH_INTERVAL"`
}

type MailConfig struct {
	Provider       string `toml:"provider" env:"PROVIDER"`
	SendGridAPIKey string `toml:"sendgrid_api_key" env:"SENDGRID_API_KEY"`
	FromName       string `toml:"from_name" env:"FROM_NAME"`
	FromAddress    string `toml:"from_address" env:"FROM_ADDRESS"`
}

func Default() Config {
	return Config{
		HTTP:       HTTPConfig{Addr: ":8080"},
		Admin:      AdminConfig{Addr: "127.0.0.1:9090"},
		Log:        LogConfig{Level: "info", Format: "console"},
		Database:   DatabaseConfig{Driver: "sqlite", DSN: "file:custodia.db"},
		App:        AppConfig{BaseURL: "http://localhost:3000"},
		Cron:       CronConfig{Header: "x-internal-cron"},
		Onboarding: OnboardingConfig{Window: 30 * 24 * time.Hour},
		Dispatch:   DispatchConfig{BatchSize: 50, StuckAfter: 15 * time.Minute},
		Scheduler: SchedulerConfig{
			GuardInterval:    24 * time.Hour,
			DispatchInterval: time.Minute,
		},
		Mail: MailConfig{Provider: "log", FromName: "Custodia360"},
	}
}

// Load layers defaults, the TOML file at path, a .env file and CUSTODIA_*
// variables, in that order. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		_, err := toml.DecodeFile(path, &cfg)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid config: database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if _, err := url.ParseRequestURI(c.App.BaseURL); err != nil {
		return fmt.Errorf("invalid config: app.base_url: %w", err)
	}
	if c.Cron.Header == "" {
		return fmt.Errorf("invalid config: cron.header is required")
	}
	if c.Guard.CatchUpDays < 0 {
		return fmt.Errorf("invalid config: guard.catch_up_days must not be negative")
	}
	if c.Dispatch.BatchSize <= 0 {
		return fmt.Errorf("invalid config: dispatch.batch_size must be positive")
	}
	if c.Scheduler.Enabled && (c.Scheduler.GuardInterval <= 0 || c.Scheduler.DispatchInterval <= 0) {
		return fmt.Errorf("invalid config: scheduler intervals must be positive")
	}
	switch c.Mail.Provider {
	case "log":
	case "sendgrid":
		if c.Mail.SendGridAPIKey == "" || c.Mail.FromAddress == "" {
			return fmt.Errorf("invalid config: sendgrid needs mail.sendgrid_api_key and mail.from_address")
		}
	default:
		return fmt.Errorf("invalid config: unknown mail.provider %q", c.Mail.Provider)
	}
	return nil
}

// HasDatastore reports whether enough is configured to open the store.
func (c *Config) HasDatastore() bool {
	return c.Database.DSN != ""
}
