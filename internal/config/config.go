package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port            int      `env:"PORT" envDefault:"8490"`
	DeviceID        string   `env:"DEVICE_ID,required,notEmpty"`
	DeviceName      string   `env:"DEVICE_NAME" envDefault:"quillread"`
	DatabaseURL     string   `env:"DATABASE_URL" envDefault:"file:peersync.db"`
	RedisURL        string   `env:"REDIS_URL"`
	LogLevel        string   `env:"LOG_LEVEL" envDefault:"info"`
	Peers           []string `env:"PEERS" envSeparator:","`
	AccountAPIURL   string   `env:"ACCOUNT_API_URL"`
	AccountToken    string   `env:"ACCOUNT_TOKEN"`
	PINTTLSeconds   int      `env:"PIN_TTL_SECONDS" envDefault:"300"`
	TrustWindowDays int      `env:"TRUST_WINDOW_DAYS" envDefault:"30"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) PINTTL() time.Duration {
	return time.Duration(c.PINTTLSeconds) * time.Second
}

func (c *Config) TrustWindow() time.Duration {
	return time.Duration(c.TrustWindowDays) * 24 * time.Hour
}

// AccountSyncConfigured reports whether the optional account-based sync
// path has a remote endpoint to talk to.
func (c *Config) AccountSyncConfigured() bool {
	return c.AccountAPIURL != ""
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DeviceID) == "" {
		return fmt.Errorf("DEVICE_ID must not be blank")
	}
	if c.PINTTLSeconds <= 0 {
		return fmt.Errorf("PIN_TTL_SECONDS must be positive")
	}
	if c.TrustWindowDays <= 0 {
		return fmt.Errorf("TRUST_WINDOW_DAYS must be positive")
	}
	for _, peer := range c.Peers {
		if strings.TrimSpace(peer) == "" {
			return fmt.Errorf("PEERS contains an empty address")
		}
	}
	if c.AccountToken != "" && c.AccountAPIURL == "" {
		return fmt.Errorf("ACCOUNT_TOKEN is set but ACCOUNT_API_URL is empty")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
