package config

import (
	"github.com/kelseyhightower/envconfig"
)

// Config holds all startup configuration. It is constructed once in main and
// passed explicitly to the components that need it; nothing reads the
// environment after Load returns.
type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY" required:"true"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET" required:"true"`

	// ClientURL is the storefront origin used for checkout redirect and
	// billing portal return URLs.
	ClientURL      string   `envconfig:"CLIENT_URL" default:"http://localhost:5173"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{cfg.ClientURL}
	}
	return &cfg, nil
}
