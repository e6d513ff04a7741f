package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tokenpad/presale-core/internal/domain"
)

type Config struct {
	// Core
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Mail provider
	MailerURL  string `env:"MAILER_API_URL,required"`
	MailerKey  string `env:"MAILER_API_KEY,required"`
	MailFrom   string `env:"MAIL_FROM" envDefault:"billing@tokenpad.io"`
	MailerName string `env:"MAIL_FROM_NAME" envDefault:"Tokenpad Billing"`

	// Delivery workers
	Workers       int           `env:"WORKER_COUNT" envDefault:"5"`
	PollInterval  time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"5s"`
	LeaseDuration time.Duration `env:"WORKER_LEASE" envDefault:"5m"`

	// Retry policy
	MaxAttempts int           `env:"DELIVERY_MAX_ATTEMPTS" envDefault:"5"`
	BackoffBase time.Duration `env:"DELIVERY_BACKOFF_BASE" envDefault:"30s"`
	BackoffMax  time.Duration `env:"DELIVERY_BACKOFF_MAX" envDefault:"1h"`

	// Invoice expiry
	InvoiceTTL time.Duration `env:"INVOICE_TTL" envDefault:"72h"`

	// Metrics
	MetricsPort int `env:"METRICS_PORT" envDefault:"9090"`

	// Optional Redis nudge channel
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Optional Telegram ops alerts
	BotToken         string `env:"BOT_TOKEN"`
	AlertChatID      int64  `env:"ALERT_TELEGRAM_CHAT_ID"`
	AlertTopicFailed int    `env:"ALERT_TOPIC_FAILED"`
	AlertTopicPanic  int    `env:"ALERT_TOPIC_PANIC"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// RetryPolicy builds the delivery retry policy from the loaded settings.
func (c *Config) RetryPolicy() domain.RetryPolicy {
	return domain.RetryPolicy{
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   c.BackoffBase,
		MaxDelay:    c.BackoffMax,
	}
}
