// Package credentials contains the credential storage logic for grantflow.
//
// Two kinds of records live here and must never be conflated: OAuthConfig is
// operator-provisioned per service, while Credential is user-specific and
// mutated by token refresh.
package credentials

import (
	"context"
	"encoding/json"
	"time"
)

// Credential is the persisted token bundle for one (service, user) pair.
//
// Provider token responses carry service-specific fields beyond the standard
// OAuth2 set (Salesforce's instance_url, Snowflake's account, WhatsApp's
// waba_id, ...). Those are kept in Extra and flattened in the JSON encoding
// so the stored record matches the provider's wire shape.
type Credential struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`

	// ExpiresIn is the lifetime in seconds as reported by the token
	// endpoint. ExpiresAt is the absolute Unix timestamp computed at save
	// time; staleness checks use ExpiresAt only.
	ExpiresIn int64 `json:"expires_in,omitempty"`
	ExpiresAt int64 `json:"expires_at,omitempty"`

	Scope string `json:"scope,omitempty"`

	// Extra holds service-specific extension fields.
	Extra map[string]any `json:"-"`

	// bareSecret marks a credential synthesized from a raw API key string
	// (hosted stores return these for non-OAuth services). Never persisted.
	bareSecret bool
}

// NewBareSecret wraps a raw API key as a credential. The token type defaults
// to Bearer since that is how every connector sends it.
func NewBareSecret(key string) *Credential {
	return &Credential{
		AccessToken: key,
		TokenType:   "Bearer",
		bareSecret:  true,
	}
}

// Bare reports whether this credential is a raw API key rather than a
// structured OAuth credential. Bare secrets are never refreshable.
func (c *Credential) Bare() bool {
	return c.bareSecret
}

// HasRefreshToken returns true if a refresh token is available.
func (c *Credential) HasRefreshToken() bool {
	return c.RefreshToken != ""
}

// IsExpired reports whether the access token is stale at the given time.
// Credentials without expiry information never report expired; services
// whose tokens are non-expiring (e.g. Notion) rely on this.
func (c *Credential) IsExpired(now time.Time) bool {
	if c.ExpiresAt == 0 {
		return false
	}
	return now.Unix() >= c.ExpiresAt
}

// SetExpiry computes ExpiresAt from ExpiresIn relative to now. A credential
// without expires_in is left untouched.
func (c *Credential) SetExpiry(now time.Time) {
	if c.ExpiresIn > 0 {
		c.ExpiresAt = now.Unix() + c.ExpiresIn
	}
}

// Merge folds a refresh response into the prior credential. Fields absent
// from the response are preserved: providers routinely omit refresh_token on
// refresh, which means "keep using the previous one".
func (c *Credential) Merge(resp *Credential) *Credential {
	merged := *c
	if resp.AccessToken != "" {
		merged.AccessToken = resp.AccessToken
	}
	if resp.RefreshToken != "" {
		merged.RefreshToken = resp.RefreshToken
	}
	if resp.TokenType != "" {
		merged.TokenType = resp.TokenType
	}
	if resp.ExpiresIn != 0 {
		merged.ExpiresIn = resp.ExpiresIn
	}
	if resp.ExpiresAt != 0 {
		merged.ExpiresAt = resp.ExpiresAt
	}
	if resp.Scope != "" {
		merged.Scope = resp.Scope
	}
	if len(resp.Extra) > 0 {
		extra := make(map[string]any, len(c.Extra)+len(resp.Extra))
		for k, v := range c.Extra {
			extra[k] = v
		}
		for k, v := range resp.Extra {
			extra[k] = v
		}
		merged.Extra = extra
	}
	return &merged
}

// credentialJSON mirrors the standard fields for (un)marshalling.
type credentialJSON struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// MarshalJSON flattens Extra into the top-level object.
func (c *Credential) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extra)+6)
	for k, v := range c.Extra {
		out[k] = v
	}
	std, err := json.Marshal(credentialJSON{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		ExpiresIn:    c.ExpiresIn,
		ExpiresAt:    c.ExpiresAt,
		Scope:        c.Scope,
	})
	if err != nil {
		return nil, err
	}
	var stdMap map[string]any
	if err := json.Unmarshal(std, &stdMap); err != nil {
		return nil, err
	}
	for k, v := range stdMap {
		out[k] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON lifts unknown top-level fields into Extra.
func (c *Credential) UnmarshalJSON(data []byte) error {
	var std credentialJSON
	if err := json.Unmarshal(data, &std); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, known := range []string{
		"access_token", "refresh_token", "token_type",
		"expires_in", "expires_at", "scope",
	} {
		delete(raw, known)
	}
	*c = Credential{
		AccessToken:  std.AccessToken,
		RefreshToken: std.RefreshToken,
		TokenType:    std.TokenType,
		ExpiresIn:    std.ExpiresIn,
		ExpiresAt:    std.ExpiresAt,
		Scope:        std.Scope,
	}
	if len(raw) > 0 {
		c.Extra = raw
	}
	return nil
}

// FromTokenResponse builds a credential from a decoded token-endpoint
// response, lifting non-standard fields into Extra and computing expiry.
func FromTokenResponse(raw map[string]any, now time.Time) (*Credential, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var cred Credential
	if err := cred.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	cred.SetExpiry(now)
	return &cred, nil
}

// OAuthConfig is the operator-provisioned OAuth application config for one
// service. It is read-only input to the flow and refresh engines.
type OAuthConfig struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret,omitempty"`
	RedirectURI  string   `json:"redirect_uri,omitempty"`
	RedirectURIs []string `json:"redirect_uris,omitempty"`

	// Service quirks.
	CustomSubdomain string `json:"custom_subdomain,omitempty"`
	APIVersion      string `json:"api_version,omitempty"`

	Extra map[string]string `json:"extra,omitempty"`
}

// Redirect returns the effective redirect URI.
func (o *OAuthConfig) Redirect() string {
	if o.RedirectURI != "" {
		return o.RedirectURI
	}
	if len(o.RedirectURIs) > 0 {
		return o.RedirectURIs[0]
	}
	return ""
}

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=types.go Store

// Store describes a type which can persist and retrieve credentials and
// OAuth app configuration, keyed per (service, user).
type Store interface {
	// GetOAuthConfig returns the app config for a service. It fails with a
	// configuration error when no client is registered for the service.
	GetOAuthConfig(ctx context.Context, serviceName string) (*OAuthConfig, error)

	// GetCredential returns the stored credential for (service, user), or
	// (nil, nil) when nothing is stored. Callers distinguish "missing" from
	// "present but invalid".
	GetCredential(ctx context.Context, serviceName, userID string) (*Credential, error)

	// SaveCredential persists a credential with full-overwrite semantics.
	// Implementations must be atomic from a reader's point of view.
	SaveCredential(ctx context.Context, serviceName, userID string, cred *Credential) error

	// DeleteCredential removes the stored credential, if any.
	DeleteCredential(ctx context.Context, serviceName, userID string) error

	// ListCredentials returns the user IDs with stored credentials for a
	// service.
	ListCredentials(ctx context.Context, serviceName string) ([]string, error)

	// Hosted reports whether this store is backed by a hosted platform.
	// Error messages are tuned on it: local operators get actionable CLI
	// hints, hosted end users get a generic message.
	Hosted() bool
}
