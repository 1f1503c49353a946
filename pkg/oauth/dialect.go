// Package oauth implements the generic OAuth2 authorization-code and
// refresh-token engines shared by every connector. Per-service behavior is
// injected through a Dialect, a small declarative bundle of endpoint URLs
// and builder hooks.
package oauth

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/grantflow/grantflow/pkg/credentials"
	"github.com/grantflow/grantflow/pkg/networking"
)

// AuthParamsBuilder builds the authorization URL query parameters.
type AuthParamsBuilder func(
	cfg *credentials.OAuthConfig, attempt *AuthAttempt, redirectURI string, scopes []string,
) url.Values

// TokenDataBuilder builds the form body for the code-for-token exchange.
type TokenDataBuilder func(
	cfg *credentials.OAuthConfig, attempt *AuthAttempt, redirectURI string, scopes []string, code string,
) url.Values

// RefreshDataBuilder builds the form body for the refresh-token grant.
// The prior credential is available for dialects that need auxiliary fields.
type RefreshDataBuilder func(
	cfg *credentials.OAuthConfig, refreshToken string, prior *credentials.Credential,
) url.Values

// TokenHeaderBuilder builds the headers for token-endpoint requests.
type TokenHeaderBuilder func(cfg *credentials.OAuthConfig) http.Header

// TokenProcessor normalizes a raw token-endpoint response into a credential.
type TokenProcessor func(raw map[string]any, now time.Time) (*credentials.Credential, error)

// Dialect describes how one service speaks OAuth2. Zero hooks are required:
// every unset hook falls back to the standard OAuth2 behavior, so most
// services only declare endpoints and scopes.
type Dialect struct {
	// Service is the connector's service name, e.g. "asana".
	Service string

	// AuthURL and TokenURL are the provider endpoints. They may contain
	// {subdomain} and {api_version} placeholders expanded from the
	// operator's OAuthConfig (Shopify, Snowflake).
	AuthURL  string
	TokenURL string

	// DefaultScopes are requested when the caller passes none.
	DefaultScopes []string

	// ScopeSeparator joins scopes in the authorization request.
	// Defaults to a space per RFC 6749.
	ScopeSeparator string

	// UsePKCE enables proof-key-for-code-exchange for this service.
	UsePKCE bool

	// APIKeyOnly marks services authenticated by a bare API key with no
	// OAuth flow at all (SendGrid). Such dialects reject the interactive
	// flow and serve stored bare secrets verbatim.
	APIKeyOnly bool

	// Hooks. Nil means standard behavior.
	AuthParams   AuthParamsBuilder
	TokenData    TokenDataBuilder
	RefreshData  RefreshDataBuilder
	TokenHeaders TokenHeaderBuilder
	ProcessToken TokenProcessor
}

// Validate checks the dialect is usable.
func (d *Dialect) Validate() error {
	if d.Service == "" {
		return fmt.Errorf("service name is required")
	}
	if d.APIKeyOnly {
		return nil
	}
	if d.AuthURL == "" {
		return fmt.Errorf("authorization URL is required for service %s", d.Service)
	}
	if d.TokenURL == "" {
		return fmt.Errorf("token URL is required for service %s", d.Service)
	}

	// Placeholders are expanded per-config, so validate the shape only when
	// the URL is concrete.
	if !strings.Contains(d.AuthURL, "{") {
		if err := networking.ValidateEndpointURL(d.AuthURL); err != nil {
			return fmt.Errorf("invalid authorization URL: %w", err)
		}
	}
	if !strings.Contains(d.TokenURL, "{") {
		if err := networking.ValidateEndpointURL(d.TokenURL); err != nil {
			return fmt.Errorf("invalid token URL: %w", err)
		}
	}
	return nil
}

// expandURL substitutes per-operator placeholders in an endpoint URL.
func expandURL(endpoint string, cfg *credentials.OAuthConfig) string {
	r := strings.NewReplacer(
		"{subdomain}", cfg.CustomSubdomain,
		"{api_version}", cfg.APIVersion,
	)
	return r.Replace(endpoint)
}

// AuthorizationURL returns the provider's authorization endpoint for the
// given operator config.
func (d *Dialect) AuthorizationURL(cfg *credentials.OAuthConfig) string {
	return expandURL(d.AuthURL, cfg)
}

// TokenEndpoint returns the provider's token endpoint for the given
// operator config.
func (d *Dialect) TokenEndpoint(cfg *credentials.OAuthConfig) string {
	return expandURL(d.TokenURL, cfg)
}

func (d *Dialect) scopeSeparator() string {
	if d.ScopeSeparator == "" {
		return " "
	}
	return d.ScopeSeparator
}

func (d *Dialect) joinScopes(scopes []string) string {
	return strings.Join(scopes, d.scopeSeparator())
}

// EffectiveScopes returns the caller's scopes, or the dialect defaults.
func (d *Dialect) EffectiveScopes(scopes []string) []string {
	if len(scopes) > 0 {
		return scopes
	}
	return d.DefaultScopes
}

func (d *Dialect) buildAuthParams(
	cfg *credentials.OAuthConfig, attempt *AuthAttempt, redirectURI string, scopes []string,
) url.Values {
	if d.AuthParams != nil {
		return d.AuthParams(cfg, attempt, redirectURI, scopes)
	}

	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", cfg.ClientID)
	params.Set("redirect_uri", redirectURI)
	params.Set("state", attempt.State)
	if len(scopes) > 0 {
		params.Set("scope", d.joinScopes(scopes))
	}
	if attempt.UsesPKCE() {
		params.Set("code_challenge", attempt.CodeChallenge)
		params.Set("code_challenge_method", PKCEMethodS256)
	}
	return params
}

func (d *Dialect) buildTokenData(
	cfg *credentials.OAuthConfig, attempt *AuthAttempt, redirectURI string, scopes []string, code string,
) url.Values {
	if d.TokenData != nil {
		return d.TokenData(cfg, attempt, redirectURI, scopes, code)
	}

	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", redirectURI)
	data.Set("client_id", cfg.ClientID)
	if cfg.ClientSecret != "" {
		data.Set("client_secret", cfg.ClientSecret)
	}
	if attempt.UsesPKCE() {
		data.Set("code_verifier", attempt.CodeVerifier)
	}
	return data
}

func (d *Dialect) buildRefreshData(
	cfg *credentials.OAuthConfig, refreshToken string, prior *credentials.Credential,
) url.Values {
	if d.RefreshData != nil {
		return d.RefreshData(cfg, refreshToken, prior)
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", cfg.ClientID)
	if cfg.ClientSecret != "" {
		data.Set("client_secret", cfg.ClientSecret)
	}
	return data
}

func (d *Dialect) buildTokenHeaders(cfg *credentials.OAuthConfig) http.Header {
	if d.TokenHeaders != nil {
		return d.TokenHeaders(cfg)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/x-www-form-urlencoded")
	headers.Set("Accept", "application/json")
	return headers
}

func (d *Dialect) processToken(raw map[string]any, now time.Time) (*credentials.Credential, error) {
	if d.ProcessToken != nil {
		return d.ProcessToken(raw, now)
	}
	return credentials.FromTokenResponse(raw, now)
}
