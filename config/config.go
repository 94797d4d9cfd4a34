// Package config loads runtime settings from the environment (optionally via
// a .env file) and the economy tunables from an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config holds process-level settings.
type Config struct {
	Port           string `env:"PORT,default=5300"`
	DatabaseURL    string `env:"DATABASE_URL,required"`
	ServiceToken   string `env:"WARS_SERVICE_TOKEN,required"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	Timezone       string `env:"TIMEZONE,default=UTC"`
	EconomyFile    string `env:"ECONOMY_FILE"`
	LogFile        string `env:"LOG_FILE,default=./logs/app.log"`

	RedisAddr string `env:"REDIS_ADDR"`

	SyncServiceURL   string        `env:"SYNC_SERVICE_URL"`
	SyncServiceToken string        `env:"SYNC_SERVICE_TOKEN"`
	UserSyncInterval time.Duration `env:"USER_SYNC_INTERVAL,default=1m"`

	TauntServiceURL   string `env:"TAUNT_SERVICE_URL"`
	TauntServiceToken string `env:"TAUNT_SERVICE_TOKEN"`

	R2AccountID       string `env:"CLOUDFLARE_ACCOUNT_ID"`
	R2AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	R2AccessKeySecret string `env:"R2_ACCESS_KEY_SECRET"`
	R2Bucket          string `env:"R2_BUCKET_NAME"`

	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL,default=5s"`
}

// Load reads .env (if present) and decodes the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	return FromEnv()
}

// FromEnv decodes the current process environment without touching .env.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Location resolves Timezone; calendar-day streak math happens in this zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Origins splits ALLOWED_ORIGINS and trims each entry.
func (c *Config) Origins() []string {
	var out []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if o := strings.TrimSpace(origin); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// R2Enabled reports whether report archiving has credentials.
func (c *Config) R2Enabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2AccessKeySecret != "" && c.R2Bucket != ""
}
