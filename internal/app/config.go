package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (ORDERFLOW_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"Ops server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (ORDERFLOW_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Channel     ChannelConfig
	Tax         TaxConfig
	Order       OrderConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// ChannelConfig describes the storefront channel orders are priced for.
type ChannelConfig struct {
	ID               string `default:"default" usage:"Channel ID"`
	Code             string `default:"default" usage:"Channel code"`
	DefaultTaxZoneID string `default:"" usage:"Tax zone used when no shipping address matches" flag:"default-tax-zone"`
	PricesIncludeTax bool   `default:"false" usage:"Catalog prices without their own pricing mode include tax" flag:"prices-include-tax"`
}

// TaxConfig selects how tax totals are rounded.
type TaxConfig struct {
	Rounding string `default:"line" usage:"Tax summary rounding: line or order" flag:"tax-rounding"`
}

// OrderConfig toggles the optional order process rules.
type OrderConfig struct {
	AllowCancelAfterSettlement bool `default:"false" usage:"Allow cancelling settled orders" flag:"allow-cancel-after-settlement"`
	RequireShippingMethod      bool `default:"true" usage:"Require a shipping method before payment" flag:"require-shipping-method"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ORDERFLOW",
		Files:     []string{"config.yaml", "/etc/orderflow/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that have no usable default.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set ORDERFLOW_DATABASE_URL or DATABASE_URL")
	}
	switch c.Tax.Rounding {
	case "line", "order":
	default:
		return errors.Errorf("unknown tax rounding %q: want line or order", c.Tax.Rounding)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's ORDERFLOW_-prefixed configuration.
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
