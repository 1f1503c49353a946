package oauth

import (
	"context"
	"fmt"
	"time"

	"github.com/grantflow/grantflow/pkg/credentials"
	grterrors "github.com/grantflow/grantflow/pkg/errors"
	"github.com/grantflow/grantflow/pkg/logger"
	"github.com/grantflow/grantflow/pkg/networking"
)

// Refresher checks stored credentials for staleness and performs the
// refresh-token grant when needed. This is the hot path: it runs once per
// inbound tool call per connector, and the common case is a fresh credential
// returned with zero network traffic.
//
// Concurrent calls for distinct (service, user) pairs are safe. Two calls
// racing to refresh the same pair both hit the provider and the store's
// last-writer-wins save converges them; see DESIGN.md for the tradeoff.
type Refresher struct {
	store  credentials.Store
	client networking.HTTPClient
	now    func() time.Time
}

// RefresherOption customizes a Refresher.
type RefresherOption func(*Refresher)

// WithRefreshHTTPClient overrides the token-endpoint HTTP client.
func WithRefreshHTTPClient(client networking.HTTPClient) RefresherOption {
	return func(r *Refresher) {
		r.client = client
	}
}

// WithClock overrides the time source. Tests use this to advance past
// expiry without sleeping.
func WithClock(now func() time.Time) RefresherOption {
	return func(r *Refresher) {
		r.now = now
	}
}

// NewRefresher creates a refresher over a credential store.
func NewRefresher(store credentials.Store, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// missingCredentialError tunes the message by deployment: local operators
// can run the auth command themselves, hosted end users cannot.
func (r *Refresher) missingCredentialError(serviceName, userID string) error {
	if r.store.Hosted() {
		return grterrors.NewAuthenticationRequiredError(
			fmt.Sprintf("no credentials found for %s; please connect your %s account first",
				serviceName, serviceName), nil)
	}
	return grterrors.NewAuthenticationRequiredError(
		fmt.Sprintf("no credentials found for %s user %q; run `grantflow auth %s %s` to authenticate",
			serviceName, userID, serviceName, userID), nil)
}

// Credentials returns a valid credential bundle for (service, user),
// refreshing and persisting transparently when the stored one is stale.
func (r *Refresher) Credentials(ctx context.Context, dialect *Dialect, userID string) (*credentials.Credential, error) {
	serviceName := dialect.Service

	cred, err := r.store.GetCredential(ctx, serviceName, userID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, r.missingCredentialError(serviceName, userID)
	}

	// Bare API keys never expire and never refresh.
	if cred.Bare() {
		return cred, nil
	}

	now := r.now()
	if !cred.IsExpired(now) {
		// Fast path: no network traffic.
		return cred, nil
	}

	if !cred.HasRefreshToken() {
		return nil, grterrors.NewAuthenticationRequiredError(
			fmt.Sprintf("access token for %s user %q expired and no refresh token is stored; re-authentication required",
				serviceName, userID), nil)
	}

	return r.refresh(ctx, dialect, userID, cred)
}

// AccessToken returns just the bearer token for (service, user).
func (r *Refresher) AccessToken(ctx context.Context, dialect *Dialect, userID string) (string, error) {
	cred, err := r.Credentials(ctx, dialect, userID)
	if err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}

// refresh performs one refresh-token grant and persists the merged result.
func (r *Refresher) refresh(
	ctx context.Context, dialect *Dialect, userID string, prior *credentials.Credential,
) (*credentials.Credential, error) {
	serviceName := dialect.Service

	cfg, err := r.store.GetOAuthConfig(ctx, serviceName)
	if err != nil {
		return nil, err
	}

	logger.Debugw("Refreshing expired access token", "service", serviceName, "user", userID)

	data := dialect.buildRefreshData(cfg, prior.RefreshToken, prior)
	headers := dialect.buildTokenHeaders(cfg)

	raw, err := postTokenEndpoint(ctx, r.client, dialect.TokenEndpoint(cfg), data, headers)
	if err != nil {
		return nil, err
	}

	resp, err := dialect.processToken(raw, r.now())
	if err != nil {
		return nil, grterrors.NewTokenExchangeError("failed to normalize refresh response", err)
	}

	// Providers routinely omit refresh_token on refresh; Merge keeps the
	// prior one (and any service-specific extension fields) alive.
	merged := prior.Merge(resp)
	merged.SetExpiry(r.now())

	if err := r.store.SaveCredential(ctx, serviceName, userID, merged); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed credential for %s/%s: %w", serviceName, userID, err)
	}
	return merged, nil
}
