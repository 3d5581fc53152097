package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURI string `env:"DATABASE_URI"`
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	JWTSecret   string `env:"JWT_SECRET"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Alarm evaluation
	DefaultTimezone string        `env:"DEFAULT_TIMEZONE" envDefault:"Europe/Madrid"`
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"30s"`
	AlarmTolerance  time.Duration `env:"ALARM_TOLERANCE" envDefault:"5m"`

	// Maintenance
	CleanupCron               string `env:"CLEANUP_CRON" envDefault:"0 3 * * *"`
	NotificationRetentionDays int    `env:"NOTIFICATION_RETENTION_DAYS" envDefault:"30"`
	LoginRatePerMinute        int    `env:"LOGIN_RATE_PER_MINUTE" envDefault:"20"`

	// Optional integrations, disabled when empty
	RedisURL        string   `env:"REDIS_URL"`
	KafkaBrokers    []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaAlertTopic string   `env:"KAFKA_ALERT_TOPIC" envDefault:"appointment-alerts"`
	TelegramToken   string   `env:"TELEGRAM_TOKEN"`
	AIAPIKey        string   `env:"AI_API_KEY"`
	AIBaseURL       string   `env:"AI_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	AIModel         string   `env:"AI_MODEL" envDefault:"openai/gpt-4o-mini"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional in production
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.KafkaBrokers = compact(cfg.KafkaBrokers)
	return cfg, nil
}

// Validate reports every missing or unusable setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURI == "" {
		errs = append(errs, errors.New("DATABASE_URI is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Errorf("DEFAULT_TIMEZONE %q: %w", c.DefaultTimezone, err))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.AlarmTolerance <= 0 {
		errs = append(errs, errors.New("ALARM_TOLERANCE must be positive"))
	}
	return errors.Join(errs...)
}

// Location returns the default zone for appointments without one.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) UseRedis() bool    { return c.RedisURL != "" }
func (c *Config) UseKafka() bool    { return len(c.KafkaBrokers) > 0 }
func (c *Config) UseTelegram() bool { return c.TelegramToken != "" }
func (c *Config) UseAI() bool       { return c.AIAPIKey != "" }

func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
