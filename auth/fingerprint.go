package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns a stable, non-reversible identifier for a credential.
// Registries and audit entries store the fingerprint so the raw credential
// never outlives the handshake that presented it.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
