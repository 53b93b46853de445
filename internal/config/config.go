package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

// Digest policy selection. The schedule policy is authoritative; the
// accumulator is retained as an explicitly alternate strategy.
const (
	PolicySchedule    = "schedule"
	PolicyAccumulator = "accumulator"
)

// Send gate selection for the dispatcher.
const (
	SendGateDelay = "delay"
	SendGateRedis = "redis"
)

// Mail provider selection.
const (
	MailProviderResend  = "resend"
	MailProviderWebhook = "webhook"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	BaseURL     string `env:"BASE_URL,required=true"`
	FrontendURL string `env:"FRONTEND_URL"`

	MailProvider   string `env:"MAIL_PROVIDER,default=resend"`
	ResendAPIKey   string `env:"RESEND_API_KEY"`
	FromEmail      string `env:"FROM_EMAIL,default=digest@toolhub.dev"`
	MailWebhookURL string `env:"MAIL_WEBHOOK_URL"`

	DigestPolicy     string `env:"DIGEST_POLICY,default=schedule"`
	Timezone         string `env:"TIMEZONE,default=UTC"`
	DailyTriggerHour int    `env:"DAILY_TRIGGER_HOUR,default=21"`
	WeeklyCronSpec   string `env:"WEEKLY_CRON_SPEC,default=0 10 * * 1"`
	DailyMinItems    int    `env:"DAILY_MIN_ITEMS,default=1"`
	WeeklyMinItems   int    `env:"WEEKLY_MIN_ITEMS,default=1"`

	SendGate       string `env:"SEND_GATE,default=delay"`
	SendDelayMS    int    `env:"SEND_DELAY_MS,default=800"`
	SendRatePerSec int    `env:"SEND_RATE_PER_SEC,default=2"`

	BatchIntervalSec int `env:"BATCH_INTERVAL_SEC,default=300"`
	BatchMinItems    int `env:"BATCH_MIN_ITEMS,default=5"`
	BatchMaxPending  int `env:"BATCH_MAX_PENDING,default=10"`

	StaleClaimGraceMin int `env:"STALE_CLAIM_GRACE_MIN,default=120"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.DigestPolicy) {
	case PolicySchedule, PolicyAccumulator:
	default:
		return fmt.Errorf("invalid DIGEST_POLICY %q (want schedule or accumulator)", c.DigestPolicy)
	}

	switch strings.ToLower(c.SendGate) {
	case SendGateDelay, SendGateRedis:
	default:
		return fmt.Errorf("invalid SEND_GATE %q (want delay or redis)", c.SendGate)
	}

	switch strings.ToLower(c.MailProvider) {
	case MailProviderResend:
		if strings.TrimSpace(c.ResendAPIKey) == "" {
			return fmt.Errorf("RESEND_API_KEY is required when MAIL_PROVIDER=resend")
		}
	case MailProviderWebhook:
		if strings.TrimSpace(c.MailWebhookURL) == "" {
			return fmt.Errorf("MAIL_WEBHOOK_URL is required when MAIL_PROVIDER=webhook")
		}
	default:
		return fmt.Errorf("invalid MAIL_PROVIDER %q (want resend or webhook)", c.MailProvider)
	}

	if c.DailyTriggerHour < 0 || c.DailyTriggerHour > 23 {
		return fmt.Errorf("DAILY_TRIGGER_HOUR must be within 0..23, got %d", c.DailyTriggerHour)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}

	return nil
}

// Location resolves the configured timezone. Load has already validated
// it, so errors only happen on hand-built Config values.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

func (c *Config) SendDelay() time.Duration {
	return time.Duration(c.SendDelayMS) * time.Millisecond
}

func (c *Config) BatchInterval() time.Duration {
	return time.Duration(c.BatchIntervalSec) * time.Second
}

func (c *Config) StaleClaimGrace() time.Duration {
	return time.Duration(c.StaleClaimGraceMin) * time.Minute
}

// DailyCronSpec builds the daily trigger spec from the configured hour,
// e.g. hour 21 -> "0 21 * * *".
func (c *Config) DailyCronSpec() string {
	return fmt.Sprintf("0 %d * * *", c.DailyTriggerHour)
}
