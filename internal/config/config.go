// Package config loads application configuration from the environment.
// A .env file in the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all runtime configuration values.  Each group maps to a
// set of environment variables; see the struct tags for names and
// defaults.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Auth      AuthConfig
	Billing   BillingConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	RabbitMQ  RabbitMQConfig
	Mail      MailConfig
	OTP       OTPConfig
	Log       LogConfig
}

type AppConfig struct {
	Env  string `env:"APP_ENV" envDefault:"dev"`
	Port string `env:"APP_PORT" envDefault:"8080"`
}

type DBConfig struct {
	User string `env:"DB_USER,required,notEmpty"`
	Pass string `env:"DB_PASS"`
	Host string `env:"DB_HOST,required,notEmpty"`
	Port string `env:"DB_PORT" envDefault:"3306"`
	Name string `env:"DB_NAME,required,notEmpty"`

	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
}

type AuthConfig struct {
	JWTSecret      string `env:"JWT_SECRET,required,notEmpty"`
	AccessTTLMin   int    `env:"ACCESS_TOKEN_TTL_MIN" envDefault:"15"`
	RefreshTTLDays int    `env:"REFRESH_TOKEN_TTL_DAYS" envDefault:"30"`
	BcryptCost     int    `env:"BCRYPT_COST" envDefault:"12"`
}

// BillingConfig carries the subscription rules.  Prices are list
// prices shown in the catalogue; recorded amounts are not checked
// against them.
type BillingConfig struct {
	PeriodDays      int    `env:"SUBSCRIPTION_PERIOD_DAYS" envDefault:"30"`
	FreeDailyLimit  int    `env:"FREE_DAILY_GENERATIONS" envDefault:"3"`
	ProPrice        string `env:"PRO_PRICE" envDefault:"19.99"`
	AttorneyPrice   string `env:"ATTORNEY_PRICE" envDefault:"49.99"`
	ReconcileOnBoot bool   `env:"RECONCILE_ON_BOOT" envDefault:"false"`
}

// Period returns the paid window as a duration.
func (b BillingConfig) Period() time.Duration {
	return time.Duration(b.PeriodDays) * 24 * time.Hour
}

// Prices parses the list prices.  Paid tiers must cost more than zero.
func (b BillingConfig) Prices() (pro, attorney decimal.Decimal, err error) {
	pro, proErr := parsePrice("PRO_PRICE", b.ProPrice)
	attorney, attErr := parsePrice("ATTORNEY_PRICE", b.AttorneyPrice)
	return pro, attorney, errors.Join(proErr, attErr)
}

func parsePrice(name, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", name, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s must be greater than zero", name)
	}
	return d, nil
}

type RabbitMQConfig struct {
	URL string `env:"RABBITMQ_URL"`
}

// Enabled reports whether events should be published to a broker.
func (r RabbitMQConfig) Enabled() bool { return r.URL != "" }

type MailConfig struct {
	SendGridAPIKey string `env:"SENDGRID_API_KEY"`
	From           string `env:"MAIL_FROM" envDefault:"no-reply@legallyup.com"`
	FromName       string `env:"MAIL_FROM_NAME" envDefault:"LegallyUp"`
}

type OTPConfig struct {
	TTL         time.Duration `env:"OTP_TTL" envDefault:"10m"`
	Length      int           `env:"OTP_LENGTH" envDefault:"6"`
	MaxAttempts int           `env:"OTP_MAX_ATTEMPTS" envDefault:"5"`
	Prefix      string        `env:"OTP_PREFIX" envDefault:"otp"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"auto"` // auto, json or console
}

// Load reads the .env file, if any, and parses the environment into a
// Config.  Missing required variables are reported together in the
// returned error.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.RateLimit = cfg.RateLimit.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.Billing.PeriodDays < 1 {
		errs = append(errs, errors.New("SUBSCRIPTION_PERIOD_DAYS must be at least 1"))
	}
	if c.Billing.FreeDailyLimit < 1 {
		errs = append(errs, errors.New("FREE_DAILY_GENERATIONS must be at least 1"))
	}
	if _, _, err := c.Billing.Prices(); err != nil {
		errs = append(errs, err)
	}
	if c.Auth.AccessTTLMin < 1 || c.Auth.RefreshTTLDays < 1 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	if c.OTP.Length < 4 || c.OTP.Length > 10 {
		errs = append(errs, errors.New("OTP_LENGTH must be between 4 and 10"))
	}
	return errors.Join(errs...)
}
