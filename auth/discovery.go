package auth

import (
	"context"
	"fmt"
	"strings"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
)

// discoveryMeta is the subset of the discovery document we need.
type discoveryMeta struct {
	Issuer  string `json:"issuer"`
	JwksURI string `json:"jwks_uri"`
}

// NewFromDiscovery constructs a Verifier by fetching the issuer's OIDC
// discovery document and wiring its JWKS endpoint into an auto-refreshing
// key source. The issuer in the document must match the requested issuer
// (go-oidc enforces this).
func NewFromDiscovery(ctx context.Context, issuer string, opts ...Option) (*Verifier, error) {
	issuer = strings.TrimRight(issuer, "/")
	if issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed for %q: %w", issuer, err)
	}

	var meta discoveryMeta
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("decode discovery document: %w", err)
	}

	var missing []string
	if meta.Issuer == "" {
		missing = append(missing, "issuer")
	}
	if meta.JwksURI == "" {
		missing = append(missing, "jwks_uri")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("discovery incomplete for %q: missing %s", issuer, strings.Join(missing, ", "))
	}

	cfg := applyOptions(issuer, opts)

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{meta.JwksURI})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed for %q: %w", meta.JwksURI, err)
	}

	return &Verifier{cfg: cfg, keyfunc: guardAlgs(cfg.allowedAlgs, kf.Keyfunc)}, nil
}
