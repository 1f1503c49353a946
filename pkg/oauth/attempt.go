package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// AuthAttempt carries the ephemeral secrets of one in-flight authorization
// attempt: the CSRF state and, when PKCE is enabled, the verifier/challenge
// pair. A fresh attempt is created per flow run and discarded after the
// token exchange, so concurrent flows for the same service never share
// state. The shared OAuthConfig is never mutated.
type AuthAttempt struct {
	State         string
	CodeVerifier  string
	CodeChallenge string
}

// NewAuthAttempt creates the per-attempt state, generating PKCE parameters
// when usePKCE is set.
func NewAuthAttempt(usePKCE bool) (*AuthAttempt, error) {
	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	attempt := &AuthAttempt{
		State: base64.RawURLEncoding.EncodeToString(stateBytes),
	}

	if usePKCE {
		verifier, err := GenerateCodeVerifier()
		if err != nil {
			return nil, err
		}
		challenge, err := GenerateCodeChallenge(verifier, PKCEMethodS256)
		if err != nil {
			return nil, err
		}
		attempt.CodeVerifier = verifier
		attempt.CodeChallenge = challenge
	}

	return attempt, nil
}

// UsesPKCE reports whether this attempt carries PKCE parameters.
func (a *AuthAttempt) UsesPKCE() bool {
	return a.CodeVerifier != ""
}
