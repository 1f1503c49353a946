package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// PKCE code challenge methods (RFC 7636).
const (
	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"
)

// GenerateCodeVerifier returns a cryptographically random PKCE code verifier.
// 32 random bytes base64url-encode to 43 characters, the RFC 7636 minimum.
func GenerateCodeVerifier() (string, error) {
	verifierBytes := make([]byte, 32)
	if _, err := rand.Read(verifierBytes); err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(verifierBytes), nil
}

// GenerateCodeChallenge derives the code challenge for a verifier.
// S256 is the SHA-256 digest, base64url-encoded without padding; plain is
// the identity transform.
func GenerateCodeChallenge(verifier, method string) (string, error) {
	switch method {
	case PKCEMethodS256:
		hash := sha256.Sum256([]byte(verifier))
		return base64.RawURLEncoding.EncodeToString(hash[:]), nil
	case PKCEMethodPlain:
		return verifier, nil
	default:
		return "", fmt.Errorf("unsupported code challenge method %q", method)
	}
}
