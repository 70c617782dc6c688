// Package ratelimit bounds handshake attempts per origin using a fixed
// window counter. Admission happens before credential verification so an
// abusive origin cannot burn signature checks.
//
// Two implementations are provided: an in-process Window for single-node
// deployments and tests, and a RedisWindow that shares counters across
// nodes.
package ratelimit

import (
	"context"
	"time"
)

const (
	// DefaultWindow is the length of the fixed window.
	DefaultWindow = 60 * time.Second
	// DefaultMaxAttempts is the number of admissions per origin per window.
	DefaultMaxAttempts = 10
)

// Limiter admits or denies a handshake attempt from an origin. Admit
// returns false when the origin has exhausted its window. An error means
// the limiter itself failed; callers decide whether that fails open or
// closed.
type Limiter interface {
	Admit(ctx context.Context, origin string) (bool, error)
}

// Config carries the window parameters shared by all implementations.
// Zero values fall back to the defaults.
type Config struct {
	Window      time.Duration
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}
