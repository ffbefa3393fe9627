// Package config loads the service configuration from an optional YAML file and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"deliverysync/internal/model"
)

type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Log         LogConfig         `yaml:"log"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Delivery    DeliveryConfig    `yaml:"delivery"`
	Webhooks    WebhooksConfig    `yaml:"webhooks"`
	Sync        SyncConfig        `yaml:"sync"`
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	Events      EventsConfig      `yaml:"events"`
	Platforms   []PlatformConfig  `yaml:"platforms" validate:"dive"`
	Rules       []RuleConfig      `yaml:"rules" validate:"dive"`
}

type HTTPConfig struct {
	Addr              string        `yaml:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

type DatabaseConfig struct {
	// URL selects Postgres; empty runs on the in-memory store.
	URL     string `yaml:"url"`
	Migrate bool   `yaml:"migrate"`
}

type RedisConfig struct {
	// URL enables the Redis realtime broker.
	URL string `yaml:"url"`
}

type DeliveryConfig struct {
	DefaultPickup   model.Contact   `yaml:"default_pickup"`
	BaseFeeStr      string          `yaml:"base_fee"`
	BaseFee         decimal.Decimal `yaml:"-"`
	PerKgFeeStr     string          `yaml:"per_kg_fee"`
	PerKgFee        decimal.Decimal `yaml:"-"`
	DefaultPriority int             `yaml:"default_priority" validate:"min=1,max=4"`
	TrackingPrefix  string          `yaml:"tracking_prefix" validate:"required,max=8"`
}

type WebhooksConfig struct {
	RequireSignature bool          `yaml:"require_signature"`
	ProcessTimeout   time.Duration `yaml:"process_timeout" validate:"gt=0"`
	RetryInterval    time.Duration `yaml:"retry_interval" validate:"gt=0"`
	RetryWindow      time.Duration `yaml:"retry_window" validate:"gt=0"`
	RetryBatch       int           `yaml:"retry_batch" validate:"min=1"`
	RetryRate        float64       `yaml:"retry_rate" validate:"gt=0"`
	Retention        time.Duration `yaml:"retention" validate:"gt=0"`
}

type SyncConfig struct {
	// Schedule is a cron expression; empty disables scheduled sync.
	Schedule        string        `yaml:"schedule"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout" validate:"gt=0"`
	DefaultLookback time.Duration `yaml:"default_lookback" validate:"gt=0"`
	PageLimit       int           `yaml:"page_limit" validate:"min=1"`
}

type MarketplaceConfig struct {
	OrdersURL         string `yaml:"orders_url" validate:"omitempty,url"`
	APIKey            string `yaml:"api_key"`
	UpdateOrderStatus bool   `yaml:"update_order_status"`
}

type EventsConfig struct {
	Buffer int `yaml:"buffer" validate:"min=1"`
}

type PlatformConfig struct {
	ID            string             `yaml:"id" validate:"required"`
	Name          string             `yaml:"name" validate:"required"`
	Type          model.PlatformType `yaml:"type" validate:"oneof=marketplace shopify woocommerce generic"`
	BaseURL       string             `yaml:"base_url" validate:"omitempty,url"`
	APIKey        string             `yaml:"api_key"`
	APISecret     string             `yaml:"api_secret"`
	WebhookSecret string             `yaml:"webhook_secret"`
	Active        *bool              `yaml:"active"`
	SyncEnabled   bool               `yaml:"sync_enabled"`
	PollInterval  time.Duration      `yaml:"poll_interval"`
}

type RuleConfig struct {
	ID              string             `yaml:"id" validate:"required"`
	Platform        string             `yaml:"platform" validate:"required"`
	Name            string             `yaml:"name"`
	Type            model.SyncRuleType `yaml:"type" validate:"oneof=status_filter payment_filter date_filter value_filter"`
	Priority        int                `yaml:"priority"`
	Active          *bool              `yaml:"active"`
	AllowedStatuses []string           `yaml:"allowed_statuses"`
	RequirePayment  bool               `yaml:"require_payment"`
	MaxAgeDays      int                `yaml:"max_age_days" validate:"min=0"`
	MinValueStr     string             `yaml:"min_value"`
	MinValue        decimal.Decimal    `yaml:"-"`
}

// Default returns the configuration used before the file and environment are applied.
func Default() Config {
	return Config{
		HTTP:     HTTPConfig{Addr: ":8080", ReadHeaderTimeout: 5 * time.Second, ShutdownTimeout: 15 * time.Second},
		Log:      LogConfig{Level: "info"},
		Database: DatabaseConfig{Migrate: true},
		Delivery: DeliveryConfig{
			BaseFeeStr:      "100.00",
			PerKgFeeStr:     "0",
			DefaultPriority: 2,
			TrackingPrefix:  "DLV",
			DefaultPickup:   model.Contact{Name: "Marketplace Store"},
		},
		Webhooks: WebhooksConfig{
			ProcessTimeout: 10 * time.Second,
			RetryInterval:  time.Minute,
			RetryWindow:    24 * time.Hour,
			RetryBatch:     50,
			RetryRate:      5,
			Retention:      30 * 24 * time.Hour,
		},
		Sync: SyncConfig{
			Schedule:        "@every 1m",
			FetchTimeout:    30 * time.Second,
			DefaultLookback: 24 * time.Hour,
			PageLimit:       100,
		},
		Events: EventsConfig{Buffer: 256},
	}
}

// Load reads the file at path (CONFIG_FILE when path is empty; no file is fine),
// expands ${VAR} references in it, applies environment overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.finish(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	} else if v := os.Getenv("PORT"); v != "" {
		cfg.HTTP.Addr = ":" + v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("MARKETPLACE_ORDERS_URL"); v != "" {
		cfg.Marketplace.OrdersURL = v
	}
	if v := os.Getenv("MARKETPLACE_API_KEY"); v != "" {
		cfg.Marketplace.APIKey = v
	}
	for name, dst := range map[string]*bool{
		"DB_MIGRATE":                 &cfg.Database.Migrate,
		"WEBHOOKS_REQUIRE_SIGNATURE": &cfg.Webhooks.RequireSignature,
	} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
		*dst = b
	}
	return nil
}

var validate = validator.New()

func (c *Config) finish() error {
	var err error
	if c.Delivery.BaseFee, err = decimal.NewFromString(c.Delivery.BaseFeeStr); err != nil {
		return fmt.Errorf("config: delivery.base_fee: %w", err)
	}
	if c.Delivery.PerKgFee, err = decimal.NewFromString(c.Delivery.PerKgFeeStr); err != nil {
		return fmt.Errorf("config: delivery.per_kg_fee: %w", err)
	}
	for i := range c.Rules {
		c.Rules[i].MinValue = decimal.Zero
		if s := c.Rules[i].MinValueStr; s != "" {
			if c.Rules[i].MinValue, err = decimal.NewFromString(s); err != nil {
				return fmt.Errorf("config: rules[%d].min_value: %w", i, err)
			}
		}
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	var errs []error
	ids, names := map[string]bool{}, map[string]bool{}
	for _, p := range c.Platforms {
		if ids[p.ID] {
			errs = append(errs, fmt.Errorf("platform id %q repeated", p.ID))
		}
		if names[p.Name] {
			errs = append(errs, fmt.Errorf("platform name %q repeated", p.Name))
		}
		ids[p.ID], names[p.Name] = true, true
		if p.SyncEnabled && p.BaseURL == "" {
			errs = append(errs, fmt.Errorf("platform %q: sync_enabled needs base_url", p.Name))
		}
	}
	for _, r := range c.Rules {
		if !ids[r.Platform] {
			errs = append(errs, fmt.Errorf("rule %q: unknown platform %q", r.ID, r.Platform))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Connections converts the configured platforms for the store.
func (c Config) Connections() []model.PlatformConnection {
	out := make([]model.PlatformConnection, 0, len(c.Platforms))
	for _, p := range c.Platforms {
		poll := p.PollInterval
		if poll <= 0 {
			poll = 5 * time.Minute
		}
		out = append(out, model.PlatformConnection{
			ID:            p.ID,
			Name:          p.Name,
			Type:          p.Type,
			BaseURL:       p.BaseURL,
			APIKey:        p.APIKey,
			APISecret:     p.APISecret,
			WebhookSecret: p.WebhookSecret,
			Active:        p.Active == nil || *p.Active,
			SyncEnabled:   p.SyncEnabled,
			PollInterval:  poll,
		})
	}
	return out
}

func (c Config) SyncRules() []model.SyncRule {
	out := make([]model.SyncRule, 0, len(c.Rules))
	for _, r := range c.Rules {
		out = append(out, model.SyncRule{
			ID:              r.ID,
			PlatformID:      r.Platform,
			Name:            r.Name,
			Type:            r.Type,
			Priority:        r.Priority,
			Active:          r.Active == nil || *r.Active,
			AllowedStatuses: r.AllowedStatuses,
			RequirePayment:  r.RequirePayment,
			MaxAgeDays:      r.MaxAgeDays,
			MinValue:        r.MinValue,
		})
	}
	return out
}
