package auth

import (
	"context"
	"errors"
	"time"
)

// ErrNoToken indicates blank or missing token input.
var ErrNoToken = errors.New("no token")

// ErrMalformedToken indicates the token failed parsing, signature, issuer,
// audience, or claim-shape validation.
var ErrMalformedToken = errors.New("malformed token")

// ErrExpiredToken indicates the token's expiry has passed or the credential
// is older than the configured maximum age.
var ErrExpiredToken = errors.New("expired token")

// Claims is the identity extracted from a verified credential.
type Claims struct {
	// Subject is the stable user identifier (the sub claim).
	Subject string
	// Username is an optional display identity (preferred_username by
	// default); the application directory stays authoritative.
	Username string

	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenVerifier validates a raw bearer token string. Implementations must
// return one of the package sentinels (possibly wrapped) on failure and must
// never panic on hostile input.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*Claims, error)
}
