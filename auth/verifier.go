package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultLeeway        = 60 * time.Second
	defaultMaxTokenAge   = 24 * time.Hour
	defaultUsernameClaim = "preferred_username"
)

// config controls validation behavior. It is only mutated by Options at
// construction time.
type config struct {
	issuer        string
	audiences     []string
	allowedAlgs   []string
	leeway        time.Duration
	maxTokenAge   time.Duration
	usernameClaim string
}

func defaultConfig(issuer string) *config {
	return &config{
		issuer:        issuer,
		allowedAlgs:   []string{"RS256"},
		leeway:        defaultLeeway,
		maxTokenAge:   defaultMaxTokenAge,
		usernameClaim: defaultUsernameClaim,
	}
}

// Option configures a Verifier at construction time.
type Option func(*config)

// WithAudiences sets the accepted audiences. With exactly one entry the
// parser enforces it directly; with several, any intersection with the
// token's aud claim is accepted.
func WithAudiences(aud ...string) Option {
	return func(c *config) { c.audiences = append([]string(nil), aud...) }
}

// WithAllowedAlgs overrides the accepted signing algorithms.
func WithAllowedAlgs(algs ...string) Option {
	return func(c *config) {
		if len(algs) > 0 {
			c.allowedAlgs = append([]string(nil), algs...)
		}
	}
}

// WithLeeway adds clock-skew tolerance for time-based claims.
func WithLeeway(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.leeway = d
		}
	}
}

// WithMaxTokenAge bounds credential age measured from iat, independent of
// exp. Zero disables the bound. Default is 24h.
func WithMaxTokenAge(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.maxTokenAge = d
		}
	}
}

// WithUsernameClaim names the claim carrying the display username.
func WithUsernameClaim(name string) Option {
	return func(c *config) {
		if name != "" {
			c.usernameClaim = name
		}
	}
}

// Verifier validates JWT bearer credentials against a configured key source.
type Verifier struct {
	cfg     *config
	keyfunc jwt.Keyfunc
}

// NewJWKS constructs a Verifier that resolves signing keys from a static
// JWKS URL (no discovery). Keys are auto-refreshed.
func NewJWKS(ctx context.Context, issuer, jwksURL string, opts ...Option) (*Verifier, error) {
	if issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if jwksURL == "" {
		return nil, errors.New("jwks url is required")
	}
	cfg := applyOptions(issuer, opts)

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}
	return &Verifier{cfg: cfg, keyfunc: guardAlgs(cfg.allowedAlgs, kf.Keyfunc)}, nil
}

// NewHMAC constructs a Verifier for HS256 tokens signed with a shared
// secret. Intended for development and tests; production deployments should
// prefer asymmetric keys via NewJWKS or NewFromDiscovery.
func NewHMAC(issuer string, secret []byte, opts ...Option) (*Verifier, error) {
	if issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if len(secret) == 0 {
		return nil, errors.New("secret is required")
	}
	cfg := defaultConfig(issuer)
	cfg.allowedAlgs = []string{"HS256"}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	key := append([]byte(nil), secret...)
	return &Verifier{cfg: cfg, keyfunc: guardAlgs(cfg.allowedAlgs, func(t *jwt.Token) (any, error) {
		return key, nil
	})}, nil
}

func applyOptions(issuer string, opts []Option) *config {
	cfg := defaultConfig(issuer)
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// guardAlgs wraps a keyfunc with an explicit algorithm allow-list so a key is
// never handed to the parser for a disallowed method.
func guardAlgs(allowed []string, inner jwt.Keyfunc) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		alg := t.Method.Alg()
		for _, a := range allowed {
			if alg == a {
				return inner(t)
			}
		}
		return nil, fmt.Errorf("disallowed alg: %s", alg)
	}
}

// VerifyToken implements TokenVerifier.
func (v *Verifier) VerifyToken(ctx context.Context, token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNoToken
	}

	// Build parser options. If exactly one expected audience is configured we
	// can leverage the parser's built-in audience enforcement; if multiple
	// are present we perform intersection logic after parsing.
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.cfg.allowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.cfg.leeway),
	}
	if v.cfg.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.issuer))
	}
	if len(v.cfg.audiences) == 1 {
		opts = append(opts, jwt.WithAudience(v.cfg.audiences[0]))
	}
	parser := jwt.NewParser(opts...)

	parsed, err := parser.Parse(token, v.keyfunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpiredToken, err)
		}
		return nil, fmt.Errorf("%w: parse/verify failed: %v", ErrMalformedToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrMalformedToken)
	}

	if len(v.cfg.audiences) > 1 && !audIntersects(claims["aud"], v.cfg.audiences) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrMalformedToken)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrMalformedToken)
	}

	// iat is required: the maximum-age bound is meaningless without it.
	iatf, ok := claims["iat"].(float64)
	if !ok {
		return nil, fmt.Errorf("%w: missing iat", ErrMalformedToken)
	}
	iat := time.Unix(int64(iatf), 0)

	if v.cfg.maxTokenAge > 0 {
		if age := time.Since(iat); age > v.cfg.maxTokenAge+v.cfg.leeway {
			return nil, fmt.Errorf("%w: credential age %s exceeds maximum %s", ErrExpiredToken, age.Round(time.Second), v.cfg.maxTokenAge)
		}
	}

	var exp time.Time
	if expf, ok := claims["exp"].(float64); ok {
		exp = time.Unix(int64(expf), 0)
	}

	username, _ := claims[v.cfg.usernameClaim].(string)

	return &Claims{
		Subject:   sub,
		Username:  username,
		IssuedAt:  iat,
		ExpiresAt: exp,
	}, nil
}

func audIntersects(aud any, wants []string) bool {
	wantSet := map[string]struct{}{}
	for _, w := range wants {
		wantSet[w] = struct{}{}
	}
	switch v := aud.(type) {
	case string:
		_, ok := wantSet[v]
		return ok
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok {
				if _, ok2 := wantSet[s]; ok2 {
					return true
				}
			}
		}
	case []string:
		for _, s := range v {
			if _, ok := wantSet[s]; ok {
				return true
			}
		}
	}
	return false
}

// Ensure interface compliance
var _ TokenVerifier = (*Verifier)(nil)
