// Package authtest provides credential-minting helpers for tests.
//
// A Signer holds a random shared secret and mints HS256 tokens that a
// Verifier built by the same Signer accepts. Tests construct the pair once
// and mint whatever claim shapes they need:
//
//	signer := authtest.NewSigner()
//	verifier, err := signer.Verifier()
//	token := signer.MintValid("u1", "ada")
package authtest

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/collabhq/realtime-go/auth"
)

// DefaultIssuer is the issuer baked into minted tokens and the verifiers
// built from a Signer.
const DefaultIssuer = "https://auth.collab.test"

// Signer mints HS256 credentials for tests.
type Signer struct {
	issuer string
	secret []byte
}

// NewSigner creates a Signer with a fresh random secret.
func NewSigner() *Signer {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(fmt.Sprintf("authtest: read random secret: %v", err))
	}
	return &Signer{issuer: DefaultIssuer, secret: secret}
}

// Issuer returns the issuer minted into tokens.
func (s *Signer) Issuer() string { return s.issuer }

// Secret returns the shared signing secret.
func (s *Signer) Secret() []byte { return append([]byte(nil), s.secret...) }

// Verifier builds an auth.Verifier that accepts this Signer's tokens.
func (s *Signer) Verifier(opts ...auth.Option) (*auth.Verifier, error) {
	return auth.NewHMAC(s.issuer, s.secret, opts...)
}

// Mint signs a token with explicit timestamps. Tests use this to produce
// expired or stale credentials.
func (s *Signer) Mint(sub, username string, iat, exp time.Time) string {
	claims := jwt.MapClaims{
		"iss":                s.issuer,
		"sub":                sub,
		"iat":                iat.Unix(),
		"exp":                exp.Unix(),
		"preferred_username": username,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		panic(fmt.Sprintf("authtest: sign token: %v", err))
	}
	return signed
}

// MintValid signs a token issued now and valid for an hour.
func (s *Signer) MintValid(sub, username string) string {
	now := time.Now()
	return s.Mint(sub, username, now, now.Add(time.Hour))
}
