// Package auth verifies the signed, time-limited bearer credential carried by
// a connection handshake. It focuses on JWT verification against an external
// identity provider; issuing or refreshing credentials is out of scope.
//
// The public surface intentionally stays small: a TokenVerifier validates a
// raw token string and returns Claims (or a typed error). The realtime layer
// is responsible for extracting the token from the transport handshake and
// mapping sentinel errors into refusal reasons.
//
// # Verification modes
//
// NewFromDiscovery uses OpenID Connect discovery to locate the issuer's JWKS
// and validates RS256 (by default) signatures against it, with automatic key
// refresh. NewJWKS skips discovery and takes the JWKS URL directly. NewHMAC
// validates HS256 tokens against a shared secret and exists for development
// and tests.
//
// Example:
//
//	ctx := context.Background()
//	verifier, err := auth.NewFromDiscovery(ctx, "https://issuer.example",
//	    auth.WithAudiences("https://app.example"),
//	    auth.WithMaxTokenAge(12*time.Hour),
//	)
//	if err != nil { log.Fatal(err) }
//
//	claims, err := verifier.VerifyToken(ctx, rawToken)
//	if errors.Is(err, auth.ErrExpiredToken) { /* refuse: expired */ }
//	if errors.Is(err, auth.ErrMalformedToken) { /* refuse: malformed */ }
//
// # Maximum credential age
//
// Independent of the token's own exp claim, a verifier enforces a maximum
// age computed from the required iat claim. A credential older than the
// configured bound fails with ErrExpiredToken even if exp has not passed.
// This is deliberate defense in depth for long-lived connections that
// periodically re-verify the same credential.
//
// # Errors
//
// ErrNoToken signals blank input. ErrMalformedToken covers parse, signature,
// issuer, audience, and claim-shape failures. ErrExpiredToken covers both an
// elapsed exp and a breached maximum age. Verification never panics on
// attacker-controlled input.
package auth
