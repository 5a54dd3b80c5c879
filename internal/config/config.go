package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	// Server
	Port string `env:"PORT" envDefault:"8082"`

	// Infrastructure
	DatabaseURL    string   `env:"DATABASE_URL,required,notEmpty"`
	RedisURL       string   `env:"REDIS_URL" envDefault:"localhost:6379"`
	KafkaBrokers   []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	NatsURL        string   `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	JaegerEndpoint string   `env:"JAEGER_ENDPOINT" envDefault:"jaeger:4318"`

	// Payment: Razorpay
	RazorpayKeyID     string        `env:"RAZORPAY_KEY_ID,required,notEmpty"`
	RazorpayKeySecret string        `env:"RAZORPAY_KEY_SECRET,required,notEmpty"`
	RazorpayBaseURL   string        `env:"RAZORPAY_BASE_URL" envDefault:"https://api.razorpay.com"`
	GatewayTimeout    time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`

	// Pricing
	TaxRate  string `env:"TAX_RATE" envDefault:"0.18"`
	Currency string `env:"CURRENCY" envDefault:"INR"`

	// Caching and locking
	EventCacheTTL     time.Duration `env:"EVENT_CACHE_TTL" envDefault:"5m"`
	SettlementLockTTL time.Duration `env:"SETTLEMENT_LOCK_TTL" envDefault:"30s"`

	// Messaging
	StateTopic   string `env:"STATE_TOPIC" envDefault:"payment.state.changed"`
	RelayGroupID string `env:"RELAY_GROUP_ID" envDefault:"settlement-notification-relay"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	rate, err := decimal.NewFromString(c.TaxRate)
	if err != nil {
		return fmt.Errorf("parse TAX_RATE: %w", err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("TAX_RATE must be within [0, 1], got %s", c.TaxRate)
	}
	if c.GatewayTimeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS must list at least one broker")
	}
	return nil
}

// TaxRateDecimal returns the validated tax rate.
func (c *Config) TaxRateDecimal() decimal.Decimal {
	return decimal.RequireFromString(c.TaxRate)
}
