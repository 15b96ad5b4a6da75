package config

import (
	"os"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Logs   LogConfig
	DB     PostgresConfig
	Stripe StripeConfig
}

type LogConfig struct {
	Style string
	Level string
}
type PostgresConfig struct {
	Username string
	Password string
	URL      string
	Port     string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	PriceTier1    string
	PriceTier2    string
	FrontendURL   string
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Logs: LogConfig{
			Style: os.Getenv("LOG_STYLE"),
			Level: os.Getenv("LOG_LEVEL"),
		},
		DB: PostgresConfig{
			Username: os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PWD"),
			URL:      os.Getenv("POSTGRES_URL"),
			Port:     os.Getenv("POSTGRES_PORT"),
		},
		Stripe: StripeConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			PriceTier1:    os.Getenv("STRIPE_PRICE_TIER1"),
			PriceTier2:    os.Getenv("STRIPE_PRICE_TIER2"),
			FrontendURL:   os.Getenv("FRONTEND_URL"),
		},
	}

	return cfg, nil
}
