// Package auth is the connector-facing surface of grantflow. Connectors use
// exactly two entry points: AuthenticateAndSaveCredentials from a CLI during
// setup, and GetCredentials on (nearly) every tool call at serving time.
package auth

import (
	"context"

	"github.com/grantflow/grantflow/pkg/credentials"
	"github.com/grantflow/grantflow/pkg/logger"
	"github.com/grantflow/grantflow/pkg/oauth"
	"github.com/grantflow/grantflow/pkg/services"
)

// AuthenticateAndSaveCredentials runs the interactive OAuth flow for a
// service and persists the resulting credential. This is a one-shot CLI
// operation: it opens a browser and a local callback listener, and must
// never be called from a serving request path.
func AuthenticateAndSaveCredentials(
	ctx context.Context,
	userID, serviceName string,
	scopes []string,
	flowOpts ...oauth.FlowOption,
) (*credentials.Credential, error) {
	dialect, err := services.Get(serviceName)
	if err != nil {
		return nil, err
	}

	store, err := credentials.NewStore()
	if err != nil {
		return nil, err
	}

	cfg, err := store.GetOAuthConfig(ctx, serviceName)
	if err != nil {
		return nil, err
	}

	flow, err := oauth.NewFlow(dialect, cfg, flowOpts...)
	if err != nil {
		return nil, err
	}

	cred, err := flow.Run(ctx, scopes)
	if err != nil {
		return nil, err
	}

	// Persist only after the exchange validated; a failed flow leaves the
	// store untouched.
	if err := store.SaveCredential(ctx, serviceName, userID, cred); err != nil {
		return nil, err
	}

	logger.Infow("Saved credentials", "service", serviceName, "user", userID)
	return cred, nil
}

// GetCredentials returns a valid access token for (service, user),
// transparently refreshing a stale stored credential. It never prompts.
// The optional apiKey scopes the hosted platform's store per request.
func GetCredentials(ctx context.Context, userID, serviceName, apiKey string) (string, error) {
	dialect, refresher, err := refresherFor(serviceName, apiKey)
	if err != nil {
		return "", err
	}
	return refresher.AccessToken(ctx, dialect, userID)
}

// GetFullCredentials is GetCredentials for services whose callers need
// auxiliary fields beyond the bearer token (Salesforce's instance_url,
// Pipedrive's api_domain, Snowflake's account coordinates).
func GetFullCredentials(ctx context.Context, userID, serviceName, apiKey string) (*credentials.Credential, error) {
	dialect, refresher, err := refresherFor(serviceName, apiKey)
	if err != nil {
		return nil, err
	}
	return refresher.Credentials(ctx, dialect, userID)
}

func refresherFor(serviceName, apiKey string) (*oauth.Dialect, *oauth.Refresher, error) {
	dialect, err := services.Get(serviceName)
	if err != nil {
		return nil, nil, err
	}

	var opts []credentials.Option
	if apiKey != "" {
		opts = append(opts, credentials.WithAPIKey(apiKey))
	}
	store, err := credentials.NewStore(opts...)
	if err != nil {
		return nil, nil, err
	}

	return dialect, oauth.NewRefresher(store), nil
}
