package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"

	"github.com/kursadbilgin/campaign-mailer/internal/domain"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	ResendAPIKey        string `env:"RESEND_API_KEY"`
	ResendWebhookSecret string `env:"RESEND_WEBHOOK_SECRET"`
	ResendFromEmail     string `env:"RESEND_FROM_EMAIL,default=Campaign Mailer <noreply@example.com>"`
	ResendReplyTo       string `env:"RESEND_REPLY_TO"`
	ResendAPIURL        string `env:"RESEND_API_URL,default=https://api.resend.com"`

	SendIntervalRaw      string `env:"SEND_INTERVAL,default=600ms"`
	WebhookDedupeTTLRaw  string `env:"WEBHOOK_DEDUPE_TTL,default=24h"`
	SchedulerIntervalRaw string `env:"SCHEDULER_INTERVAL,default=10s"`

	DBMaxOpenConns int `env:"DB_MAX_OPEN_CONNS,default=25"`
	DBMaxIdleConns int `env:"DB_MAX_IDLE_CONNS,default=5"`

	APIPort   int    `env:"API_PORT,default=8080"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	SendInterval      time.Duration
	WebhookDedupeTTL  time.Duration
	SchedulerInterval time.Duration
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.SendInterval, err = parseDuration("SEND_INTERVAL", cfg.SendIntervalRaw, true); err != nil {
		return nil, err
	}
	if cfg.WebhookDedupeTTL, err = parseDuration("WEBHOOK_DEDUPE_TTL", cfg.WebhookDedupeTTLRaw, false); err != nil {
		return nil, err
	}
	if cfg.SchedulerInterval, err = parseDuration("SCHEDULER_INTERVAL", cfg.SchedulerIntervalRaw, false); err != nil {
		return nil, err
	}

	if cfg.DBMaxOpenConns < 1 || cfg.DBMaxIdleConns < 0 {
		return nil, fmt.Errorf("failed to load config: DB_MAX_OPEN_CONNS must be positive and DB_MAX_IDLE_CONNS non-negative")
	}

	return &cfg, nil
}

// RequireSending checks the settings the send path cannot run without.
func (c *Config) RequireSending() error {
	if strings.TrimSpace(c.ResendAPIKey) == "" {
		return fmt.Errorf("%w: RESEND_API_KEY is not set", domain.ErrConfiguration)
	}
	if strings.TrimSpace(c.ResendFromEmail) == "" {
		return fmt.Errorf("%w: RESEND_FROM_EMAIL is not set", domain.ErrConfiguration)
	}
	return nil
}

// RequireWebhook checks the settings the webhook receiver cannot run without.
func (c *Config) RequireWebhook() error {
	if strings.TrimSpace(c.ResendWebhookSecret) == "" {
		return fmt.Errorf("%w: RESEND_WEBHOOK_SECRET is not set", domain.ErrConfiguration)
	}
	return nil
}

func parseDuration(name, raw string, allowZero bool) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("failed to load config: %s: %w", name, err)
	}
	if d < 0 || (!allowZero && d == 0) {
		return 0, fmt.Errorf("failed to load config: %s must be positive, got %s", name, raw)
	}
	return d, nil
}
