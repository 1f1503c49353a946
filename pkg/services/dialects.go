package services

import (
	"encoding/base64"
	"net/http"
	"net/url"
	"time"

	"github.com/grantflow/grantflow/pkg/credentials"
	"github.com/grantflow/grantflow/pkg/oauth"
)

// basicAuthHeaders returns token-endpoint headers carrying the client
// credentials as HTTP Basic auth instead of form fields.
func basicAuthHeaders(cfg *credentials.OAuthConfig) http.Header {
	headers := http.Header{}
	headers.Set("Content-Type", "application/x-www-form-urlencoded")
	headers.Set("Accept", "application/json")
	creds := base64.StdEncoding.EncodeToString([]byte(cfg.ClientID + ":" + cfg.ClientSecret))
	headers.Set("Authorization", "Basic "+creds)
	return headers
}

func init() {
	// Asana: textbook OAuth2 with refresh tokens.
	Register(&oauth.Dialect{
		Service:       "asana",
		AuthURL:       "https://app.asana.com/-/oauth_authorize",
		TokenURL:      "https://app.asana.com/-/oauth_token",
		DefaultScopes: []string{"default"},
	})

	// Notion: client credentials go in a Basic auth header, the token body
	// is JSON-ish minimal, and access tokens never expire.
	Register(&oauth.Dialect{
		Service:      "notion",
		AuthURL:      "https://api.notion.com/v1/oauth/authorize",
		TokenURL:     "https://api.notion.com/v1/oauth/token",
		TokenHeaders: basicAuthHeaders,
		TokenData: func(_ *credentials.OAuthConfig, _ *oauth.AuthAttempt, redirectURI string, _ []string, code string) url.Values {
			data := url.Values{}
			data.Set("grant_type", "authorization_code")
			data.Set("code", code)
			data.Set("redirect_uri", redirectURI)
			return data
		},
	})

	// Pipedrive: Basic auth on the token endpoint; callers need the
	// api_domain extension field, served via full-credential reads.
	Register(&oauth.Dialect{
		Service:      "pipedrive",
		AuthURL:      "https://oauth.pipedrive.com/oauth/authorize",
		TokenURL:     "https://oauth.pipedrive.com/oauth/token",
		TokenHeaders: basicAuthHeaders,
		TokenData: func(_ *credentials.OAuthConfig, _ *oauth.AuthAttempt, redirectURI string, _ []string, code string) url.Values {
			data := url.Values{}
			data.Set("grant_type", "authorization_code")
			data.Set("code", code)
			data.Set("redirect_uri", redirectURI)
			return data
		},
		RefreshData: func(_ *credentials.OAuthConfig, refreshToken string, _ *credentials.Credential) url.Values {
			data := url.Values{}
			data.Set("grant_type", "refresh_token")
			data.Set("refresh_token", refreshToken)
			return data
		},
	})

	// Shopify: per-shop subdomain in both endpoints; no redirect_uri in the
	// token exchange; comma-separated scopes; non-expiring tokens.
	Register(&oauth.Dialect{
		Service:        "shopify",
		AuthURL:        "https://{subdomain}.myshopify.com/admin/oauth/authorize",
		TokenURL:       "https://{subdomain}.myshopify.com/admin/oauth/access_token",
		ScopeSeparator: ",",
		TokenData: func(cfg *credentials.OAuthConfig, _ *oauth.AuthAttempt, _ string, _ []string, code string) url.Values {
			data := url.Values{}
			data.Set("client_id", cfg.ClientID)
			data.Set("client_secret", cfg.ClientSecret)
			data.Set("code", code)
			return data
		},
	})

	// Salesforce: PKCE, and token responses carry instance_url (needed by
	// callers) but no expires_in. Access tokens live for the org's session
	// timeout; two hours is the platform default.
	Register(&oauth.Dialect{
		Service:  "salesforce",
		AuthURL:  "https://login.salesforce.com/services/oauth2/authorize",
		TokenURL: "https://login.salesforce.com/services/oauth2/token",
		UsePKCE:  true,
		ProcessToken: func(raw map[string]any, now time.Time) (*credentials.Credential, error) {
			cred, err := credentials.FromTokenResponse(raw, now)
			if err != nil {
				return nil, err
			}
			if cred.ExpiresIn == 0 {
				cred.ExpiresIn = 7200
				cred.SetExpiry(now)
			}
			return cred, nil
		},
	})

	// PagerDuty: PKCE-enabled authorization-code flow.
	Register(&oauth.Dialect{
		Service:  "pagerduty",
		AuthURL:  "https://identity.pagerduty.com/oauth/authorize",
		TokenURL: "https://identity.pagerduty.com/oauth/token",
		UsePKCE:  true,
	})

	// Snowflake: account-scoped endpoints; the stored credential carries
	// account/database/warehouse extension fields, preserved across
	// refreshes by the engine's merge.
	Register(&oauth.Dialect{
		Service:  "snowflake",
		AuthURL:  "https://{subdomain}.snowflakecomputing.com/oauth/authorize",
		TokenURL: "https://{subdomain}.snowflakecomputing.com/oauth/token-request",
		UsePKCE:  true,
	})

	// Linear: standard flow, non-expiring tokens.
	Register(&oauth.Dialect{
		Service:       "linear",
		AuthURL:       "https://linear.app/oauth/authorize",
		TokenURL:      "https://api.linear.app/oauth/token",
		DefaultScopes: []string{"read"},
	})

	// SendGrid: bare API key, no OAuth flow at all.
	Register(&oauth.Dialect{
		Service:    "sendgrid",
		APIKeyOnly: true,
	})
}
