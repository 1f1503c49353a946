package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/cenkalti/backoff/v5"

	"github.com/grantflow/grantflow/pkg/errors"
	"github.com/grantflow/grantflow/pkg/networking"
)

// RemoteStore is backed by the hosted platform's credential API. The
// platform scopes every request by the tenant API key, so the key is carried
// per store instance rather than per call.
type RemoteStore struct {
	baseURL string
	apiKey  string
	client  networking.HTTPClient
}

// NewRemoteStore creates a store talking to the hosted platform credential
// API at baseURL, authenticated by apiKey.
func NewRemoteStore(baseURL, apiKey string) (*RemoteStore, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("remote store base URL is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("remote store API key is required")
	}
	if err := networking.ValidateEndpointURL(baseURL); err != nil {
		return nil, fmt.Errorf("invalid remote store URL: %w", err)
	}
	return &RemoteStore{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  networking.DefaultClient(),
	}, nil
}

// Hosted always returns true for the remote store.
func (*RemoteStore) Hosted() bool {
	return true
}

// SetHTTPClient replaces the HTTP client. Intended for tests.
func (s *RemoteStore) SetHTTPClient(client networking.HTTPClient) {
	s.client = client
}

func (s *RemoteStore) endpoint(parts ...string) string {
	u := s.baseURL
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

type getResult struct {
	status int
	body   []byte
}

// getJSON performs an authenticated GET with bounded retry. GETs are
// idempotent, so transient failures and 5xx responses are retried; 4xx
// responses are returned to the caller as-is.
func (s *RemoteStore) getJSON(ctx context.Context, urlStr string) (*getResult, error) {
	operation := func() (*getResult, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("platform credential API returned HTTP %d", resp.StatusCode)
		}
		return &getResult{status: resp.StatusCode, body: body}, nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(3),
	)
}

// GetOAuthConfig fetches the app config for a service from the platform.
func (s *RemoteStore) GetOAuthConfig(ctx context.Context, serviceName string) (*OAuthConfig, error) {
	res, err := s.getJSON(ctx, s.endpoint("oauth-config", serviceName))
	if err != nil {
		return nil, errors.NewTransportError(
			fmt.Sprintf("failed to fetch OAuth config for %s", serviceName), err)
	}
	if res.status == http.StatusNotFound {
		return nil, errors.NewConfigurationError(
			fmt.Sprintf("no OAuth app configured for service %q on the platform", serviceName), nil)
	}
	if res.status != http.StatusOK {
		return nil, errors.NewTransportError(
			fmt.Sprintf("platform credential API returned HTTP %d for OAuth config %s", res.status, serviceName), nil)
	}

	var cfg OAuthConfig
	if err := json.Unmarshal(res.body, &cfg); err != nil {
		return nil, errors.NewConfigurationError(
			fmt.Sprintf("malformed OAuth config for service %q", serviceName), err)
	}
	if cfg.ClientID == "" {
		return nil, errors.NewConfigurationError(
			fmt.Sprintf("OAuth config for service %q is missing client_id", serviceName), nil)
	}
	return &cfg, nil
}

// GetCredential fetches the stored credential, or (nil, nil) when absent.
//
// The platform returns either a structured credential object or, for
// API-key services, a bare JSON string. Both shapes are normalized here so
// callers never duck-type the result.
func (s *RemoteStore) GetCredential(ctx context.Context, serviceName, userID string) (*Credential, error) {
	res, err := s.getJSON(ctx, s.endpoint("credentials", serviceName, userID))
	if err != nil {
		return nil, errors.NewTransportError(
			fmt.Sprintf("failed to fetch credential for %s/%s", serviceName, userID), err)
	}
	if res.status == http.StatusNotFound {
		return nil, nil
	}
	if res.status != http.StatusOK {
		return nil, errors.NewTransportError(
			fmt.Sprintf("platform credential API returned HTTP %d for %s/%s", res.status, serviceName, userID), nil)
	}

	// Bare API key: the body is a JSON string.
	var bare string
	if err := json.Unmarshal(res.body, &bare); err == nil {
		return NewBareSecret(bare), nil
	}

	var cred Credential
	if err := json.Unmarshal(res.body, &cred); err != nil {
		return nil, fmt.Errorf("malformed credential for %s/%s: %w", serviceName, userID, err)
	}
	return &cred, nil
}

// SaveCredential persists a credential with full-overwrite semantics.
func (s *RemoteStore) SaveCredential(ctx context.Context, serviceName, userID string, cred *Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		s.endpoint("credentials", serviceName, userID), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.NewTransportError(
			fmt.Sprintf("failed to save credential for %s/%s", serviceName, userID), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.NewTransportError(
			fmt.Sprintf("platform credential API rejected save for %s/%s with HTTP %d",
				serviceName, userID, resp.StatusCode), nil)
	}
	return nil
}

// DeleteCredential removes the stored credential, if any.
func (s *RemoteStore) DeleteCredential(ctx context.Context, serviceName, userID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		s.endpoint("credentials", serviceName, userID), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.NewTransportError(
			fmt.Sprintf("failed to delete credential for %s/%s", serviceName, userID), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent &&
		resp.StatusCode != http.StatusNotFound {
		return errors.NewTransportError(
			fmt.Sprintf("platform credential API rejected delete for %s/%s with HTTP %d",
				serviceName, userID, resp.StatusCode), nil)
	}
	return nil
}

// ListCredentials returns the user IDs with stored credentials for a service.
func (s *RemoteStore) ListCredentials(ctx context.Context, serviceName string) ([]string, error) {
	res, err := s.getJSON(ctx, s.endpoint("credentials", serviceName))
	if err != nil {
		return nil, errors.NewTransportError(
			fmt.Sprintf("failed to list credentials for %s", serviceName), err)
	}
	if res.status == http.StatusNotFound {
		return nil, nil
	}
	if res.status != http.StatusOK {
		return nil, errors.NewTransportError(
			fmt.Sprintf("platform credential API returned HTTP %d listing %s", res.status, serviceName), nil)
	}

	var users []string
	if err := json.Unmarshal(res.body, &users); err != nil {
		return nil, fmt.Errorf("malformed credential list for %s: %w", serviceName, err)
	}
	return users, nil
}
