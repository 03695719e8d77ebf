package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-orders/internal/domain/order"
	"github.com/xenking/storefront-orders/internal/sweep"
)

// Config holds the complete application configuration, loadable from
// environment variables (STORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"Probe server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Order       OrderConfig
	Sweep       SweepConfig
	Graceful    GracefulConfig
}

// OrderConfig holds the store pricing policy. Amounts are decimal strings so
// they survive env/YAML round trips without float precision loss.
type OrderConfig struct {
	ShippingFee      string `default:"25000" usage:"Flat shipping fee added to every order" flag:"shipping-fee"`
	FreeShippingOver string `default:"0" usage:"Subtotal at which shipping becomes free; 0 disables" flag:"free-shipping-over"`
	MinOrderAmount   string `default:"0" usage:"Minimum order subtotal; 0 disables" flag:"min-order-amount"`
}

// Domain parses the decimal strings into the order service configuration.
func (c OrderConfig) Domain() (order.Config, error) {
	fee, err := decimal.NewFromString(c.ShippingFee)
	if err != nil {
		return order.Config{}, errors.Wrap(err, "parse shipping fee")
	}
	free, err := decimal.NewFromString(c.FreeShippingOver)
	if err != nil {
		return order.Config{}, errors.Wrap(err, "parse free shipping threshold")
	}
	minAmount, err := decimal.NewFromString(c.MinOrderAmount)
	if err != nil {
		return order.Config{}, errors.Wrap(err, "parse minimum order amount")
	}
	return order.Config{
		ShippingFee:      fee,
		FreeShippingOver: free,
		MinOrderAmount:   minAmount,
	}, nil
}

// SweepConfig controls the daily auto-completion sweep.
type SweepConfig struct {
	TriggerHour   int           `default:"0"   usage:"Local hour of day (0-23) the sweep fires at" flag:"sweep-hour"`
	ThresholdDays int           `default:"10"  usage:"Days an order sits in Shipped before auto-completion" flag:"sweep-threshold-days"`
	Backoff       time.Duration `default:"1h"  usage:"Retry backoff after a failed sweep pass" flag:"sweep-backoff"`
}

// Domain converts to the scheduler configuration.
func (c SweepConfig) Domain() sweep.Config {
	return sweep.Config{
		TriggerHour:   c.TriggerHour,
		ThresholdDays: c.ThresholdDays,
		Backoff:       c.Backoff,
	}
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) that use standard names like DATABASE_URL and PORT
// to the application's STORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
