package billing

import (
	"errors"
	"strings"
	"time"

	"github.com/overseer-bot/shop/internal/pkg/env"
)

const (
	defaultSuccessURL           = "https://overseer-bot.net/guilds"
	defaultCancelURL            = "https://overseer-bot.net"
	defaultCorrelationRetention = 7 * 24 * time.Hour
	defaultPruneInterval        = time.Hour
)

// Config holds the billing settings loaded once at process start.
type Config struct {
	StripeSecretKey string
	WebhookSecret   string
	StripeAPIURL    string
	Prices          string

	// SuccessURL and CancelURL are handed to the processor for its browser flow.
	SuccessURL string
	CancelURL  string

	CorrelationRetention time.Duration
	PruneInterval        time.Duration
}

func LoadConfigFromEnv() Config {
	return Config{
		StripeSecretKey:      strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		WebhookSecret:        strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		StripeAPIURL:         strings.TrimSpace(env.GetEnv("STRIPE_API_URL", "")),
		Prices:               env.GetEnv("STRIPE_PRICES", ""),
		SuccessURL:           strings.TrimSpace(env.GetEnv("CHECKOUT_SUCCESS_URL", defaultSuccessURL)),
		CancelURL:            strings.TrimSpace(env.GetEnv("CHECKOUT_CANCEL_URL", defaultCancelURL)),
		CorrelationRetention: env.GetEnvDuration("CORRELATION_RETENTION", defaultCorrelationRetention),
		PruneInterval:        env.GetEnvDuration("CORRELATION_PRUNE_INTERVAL", defaultPruneInterval),
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.StripeSecretKey == "" {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY is required"))
	}
	if c.WebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required"))
	}
	if strings.TrimSpace(c.Prices) == "" {
		errs = append(errs, errors.New("STRIPE_PRICES is required"))
	}
	if c.SuccessURL == "" || c.CancelURL == "" {
		errs = append(errs, errors.New("CHECKOUT_SUCCESS_URL and CHECKOUT_CANCEL_URL must not be empty"))
	}
	if c.CorrelationRetention <= 0 {
		errs = append(errs, errors.New("CORRELATION_RETENTION must be positive"))
	}
	return errors.Join(errs...)
}
