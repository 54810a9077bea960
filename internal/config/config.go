package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Security
	TriggerTokenHash string `envconfig:"TRIGGER_TOKEN_HASH" required:"true"`

	// Processing
	BatchSize         int             `envconfig:"BATCH_SIZE" default:"10"`
	MaxRetries        int             `envconfig:"MAX_RETRIES" default:"6"`
	BackoffSchedule   []time.Duration `envconfig:"BACKOFF_SCHEDULE" default:"1s,2s,4s,8s,16s,32s"`
	DispatchTimeout   time.Duration   `envconfig:"DISPATCH_TIMEOUT" default:"10s"`
	ClaimTimeout      time.Duration   `envconfig:"CLAIM_TIMEOUT" default:"0s"`
	WorkerConcurrency int             `envconfig:"WORKER_CONCURRENCY" default:"1"`
	PollInterval      time.Duration   `envconfig:"POLL_INTERVAL" default:"0s"`
	IdempotencyTTL    time.Duration   `envconfig:"IDEMPOTENCY_TTL" default:"72h"`

	// Ingestion secrets, one per provider
	StripeWebhookSecret     string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	QuickBooksWebhookSecret string `envconfig:"QUICKBOOKS_WEBHOOK_SECRET"`
	PlaidWebhookSecret      string `envconfig:"PLAID_WEBHOOK_SECRET"`
	ZapierWebhookSecret     string `envconfig:"ZAPIER_WEBHOOK_SECRET"`

	// Downstream collaborators
	BillingSyncURL    string        `envconfig:"BILLING_SYNC_URL"`
	FinanceSyncURL    string        `envconfig:"FINANCE_SYNC_URL"`
	CRMSyncURL        string        `envconfig:"CRM_SYNC_URL"`
	SyncSigningSecret string        `envconfig:"SYNC_SIGNING_SECRET"`
	SyncTimeout       time.Duration `envconfig:"SYNC_TIMEOUT" default:"10s"`

	// Ingestion rate limit per source and client address
	IngestRateLimit  int           `envconfig:"INGEST_RATE_LIMIT" default:"600"`
	IngestRateWindow time.Duration `envconfig:"INGEST_RATE_WINDOW" default:"1m"`

	// Alerting
	AlertWebhookURL       string        `envconfig:"ALERT_WEBHOOK_URL"`
	AlertWebhookSecret    string        `envconfig:"ALERT_WEBHOOK_SECRET"`
	AlertCheckInterval    time.Duration `envconfig:"ALERT_CHECK_INTERVAL" default:"1m"`
	AlertPendingThreshold int64         `envconfig:"ALERT_PENDING_THRESHOLD" default:"0"`
	AlertFailedThreshold  int64         `envconfig:"ALERT_FAILED_THRESHOLD" default:"0"`
	AlertCooldown         time.Duration `envconfig:"ALERT_COOLDOWN" default:"15m"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("load config: BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("load config: MAX_RETRIES must be positive, got %d", c.MaxRetries)
	}
	if len(c.BackoffSchedule) == 0 {
		return fmt.Errorf("load config: BACKOFF_SCHEDULE must not be empty")
	}
	for _, d := range c.BackoffSchedule {
		if d <= 0 {
			return fmt.Errorf("load config: BACKOFF_SCHEDULE entries must be positive, got %s", d)
		}
	}
	if c.DispatchTimeout <= 0 {
		return fmt.Errorf("load config: DISPATCH_TIMEOUT must be positive")
	}
	if c.ClaimTimeout < 0 || c.PollInterval < 0 {
		return fmt.Errorf("load config: CLAIM_TIMEOUT and POLL_INTERVAL must not be negative")
	}
	// A sweep must never reclaim an entry whose dispatch can still be running
	if c.ClaimTimeout > 0 && c.ClaimTimeout <= c.DispatchTimeout {
		return fmt.Errorf("load config: CLAIM_TIMEOUT (%s) must exceed DISPATCH_TIMEOUT (%s)", c.ClaimTimeout, c.DispatchTimeout)
	}
	if c.AlertPendingThreshold < 0 || c.AlertFailedThreshold < 0 {
		return fmt.Errorf("load config: alert thresholds must not be negative")
	}
	if c.WorkerConcurrency <= 0 {
		c.WorkerConcurrency = 1
	}
	return nil
}

// IngestSecret returns the signing secret configured for a provider, if any
func (c *Config) IngestSecret(source string) string {
	switch source {
	case "stripe":
		return c.StripeWebhookSecret
	case "quickbooks":
		return c.QuickBooksWebhookSecret
	case "plaid":
		return c.PlaidWebhookSecret
	case "zapier":
		return c.ZapierWebhookSecret
	default:
		return ""
	}
}

// WatchdogEnabled reports whether any queue health rule is configured
func (c *Config) WatchdogEnabled() bool {
	return c.AlertPendingThreshold > 0 || c.AlertFailedThreshold > 0
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
