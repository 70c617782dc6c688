package realtime

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestConfigNormalizeFillsDefaults(t *testing.T) {
	var cfg Config
	cfg.Normalize()

	if cfg.RevalidateInterval != DefaultRevalidateInterval {
		t.Fatalf("revalidate interval = %v", cfg.RevalidateInterval)
	}
	if cfg.RateLimitWindow != DefaultRateLimitWindow {
		t.Fatalf("rate limit window = %v", cfg.RateLimitWindow)
	}
	if cfg.RateLimitMaxAttempts != DefaultRateLimitMaxAttempts {
		t.Fatalf("rate limit max = %d", cfg.RateLimitMaxAttempts)
	}
	if cfg.MaxCredentialAge != DefaultMaxCredentialAge {
		t.Fatalf("max credential age = %v", cfg.MaxCredentialAge)
	}
}

func TestConfigValidateRejectsNegatives(t *testing.T) {
	cases := []Config{
		{RevalidateInterval: -time.Second},
		{RateLimitWindow: -time.Second},
		{RateLimitMaxAttempts: -1},
		{MaxCredentialAge: -time.Hour},
	}
	for _, cfg := range cases {
		cfg.Normalize()
		if err := cfg.Validate(); err == nil {
			t.Fatalf("config %+v must not validate", cfg)
		}
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("REALTIME_REVALIDATE_INTERVAL", "30s")
	t.Setenv("REALTIME_RATELIMIT_MAX", "5")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RevalidateInterval != 30*time.Second {
		t.Fatalf("revalidate interval = %v", cfg.RevalidateInterval)
	}
	if cfg.RateLimitMaxAttempts != 5 {
		t.Fatalf("rate limit max = %d", cfg.RateLimitMaxAttempts)
	}
	// Untouched fields fall back to their tag defaults.
	if cfg.RateLimitWindow != time.Minute {
		t.Fatalf("rate limit window = %v", cfg.RateLimitWindow)
	}
}

func TestPublicMessageNeverLeaksDetail(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ErrNoToken, "Connection refused."},
		{ErrNoProjectID, "Connection refused."},
		{ErrRateLimited, "Connection refused."},
		{ErrMalformedCredential, "Connection refused."},
		{ErrExpiredCredential, "Connection refused."},
		{ErrIdentityNotFound, "Connection refused."},
		{ErrProjectNotFound, "Connection refused."},
		{ErrNotAMember, "Connection refused."},
		{ErrPermissionDenied, "Permission denied."},
		{ErrRevalidationFailed, "Session terminated."},
		{errors.New("database on fire"), "Connection refused."},
	}
	for _, tc := range cases {
		// Wrapping with extra detail must not change the public message.
		wrapped := fmt.Errorf("%w: user u1 lacks delete-project in p1", tc.err)
		if got := PublicMessage(wrapped); got != tc.want {
			t.Fatalf("PublicMessage(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
