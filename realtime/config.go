package realtime

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

const (
	// DefaultRevalidateInterval is how often an authorized session's
	// credential is re-checked.
	DefaultRevalidateInterval = 15 * time.Second
	// DefaultRateLimitWindow mirrors ratelimit.DefaultWindow for callers
	// configuring everything in one place.
	DefaultRateLimitWindow = 60 * time.Second
	// DefaultRateLimitMaxAttempts mirrors ratelimit.DefaultMaxAttempts.
	DefaultRateLimitMaxAttempts = 10
	// DefaultMaxCredentialAge bounds credential age at handshake and
	// revalidation, independent of the credential's own expiry.
	DefaultMaxCredentialAge = 24 * time.Hour
)

// Config carries deployment-level tuning for the realtime manager.
// Defaults can be loaded via envdecode.
type Config struct {
	// RevalidateInterval between credential re-checks. ENV: REALTIME_REVALIDATE_INTERVAL
	RevalidateInterval time.Duration `env:"REALTIME_REVALIDATE_INTERVAL,default=15s"`
	// RateLimitWindow for handshake admission. ENV: REALTIME_RATELIMIT_WINDOW
	RateLimitWindow time.Duration `env:"REALTIME_RATELIMIT_WINDOW,default=60s"`
	// RateLimitMaxAttempts per origin per window. ENV: REALTIME_RATELIMIT_MAX
	RateLimitMaxAttempts int `env:"REALTIME_RATELIMIT_MAX,default=10"`
	// MaxCredentialAge accepted at handshake. ENV: REALTIME_MAX_CREDENTIAL_AGE
	MaxCredentialAge time.Duration `env:"REALTIME_MAX_CREDENTIAL_AGE,default=24h"`
}

// LoadConfigFromEnv builds a Config using envdecode to populate fields.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode realtime config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Normalize fills zero fields with defaults.
func (c *Config) Normalize() {
	if c.RevalidateInterval == 0 {
		c.RevalidateInterval = DefaultRevalidateInterval
	}
	if c.RateLimitWindow == 0 {
		c.RateLimitWindow = DefaultRateLimitWindow
	}
	if c.RateLimitMaxAttempts == 0 {
		c.RateLimitMaxAttempts = DefaultRateLimitMaxAttempts
	}
	if c.MaxCredentialAge == 0 {
		c.MaxCredentialAge = DefaultMaxCredentialAge
	}
}

// Validate returns an error if required invariants are not met.
func (c Config) Validate() error {
	if c.RevalidateInterval < 0 {
		return errors.New("realtime: revalidate interval must be positive")
	}
	if c.RateLimitWindow < 0 {
		return errors.New("realtime: rate limit window must be positive")
	}
	if c.RateLimitMaxAttempts < 0 {
		return errors.New("realtime: rate limit max attempts must be positive")
	}
	if c.MaxCredentialAge < 0 {
		return errors.New("realtime: max credential age must be positive")
	}
	return nil
}
