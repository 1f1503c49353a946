package credentials

import (
	"context"
	"os"
	"strings"

	"github.com/grantflow/grantflow/pkg/logger"
)

// EnvVarPrefix is the prefix for environment-variable credential fallback.
const EnvVarPrefix = "GRANTFLOW_SECRET_"

// FallbackStore wraps a primary store with environment variable fallback for
// credential reads. This covers CI and headless deployments where a bare API
// key is injected via the environment instead of the interactive auth flow.
type FallbackStore struct {
	primary Store
}

// NewFallbackStore creates a store with environment variable fallback.
func NewFallbackStore(primary Store) *FallbackStore {
	return &FallbackStore{primary: primary}
}

func envKey(serviceName string) string {
	name := strings.ToUpper(serviceName)
	name = strings.NewReplacer("-", "_", ".", "_").Replace(name)
	return EnvVarPrefix + name
}

// GetCredential tries the primary store first, falling back to the
// GRANTFLOW_SECRET_<SERVICE> environment variable when nothing is stored.
// The fallback value is treated as a bare secret.
func (f *FallbackStore) GetCredential(ctx context.Context, serviceName, userID string) (*Credential, error) {
	cred, err := f.primary.GetCredential(ctx, serviceName, userID)
	if err != nil || cred != nil {
		return cred, err
	}

	if value := os.Getenv(envKey(serviceName)); value != "" {
		logger.Debugf("Credential for %s retrieved from environment variable fallback", serviceName)
		return NewBareSecret(value), nil
	}
	return nil, nil
}

// GetOAuthConfig delegates to the primary store.
func (f *FallbackStore) GetOAuthConfig(ctx context.Context, serviceName string) (*OAuthConfig, error) {
	return f.primary.GetOAuthConfig(ctx, serviceName)
}

// SaveCredential always uses the primary store (no env var writes).
func (f *FallbackStore) SaveCredential(ctx context.Context, serviceName, userID string, cred *Credential) error {
	return f.primary.SaveCredential(ctx, serviceName, userID, cred)
}

// DeleteCredential always uses the primary store.
func (f *FallbackStore) DeleteCredential(ctx context.Context, serviceName, userID string) error {
	return f.primary.DeleteCredential(ctx, serviceName, userID)
}

// ListCredentials only lists from the primary store
// (env vars not listed in fallback mode for security).
func (f *FallbackStore) ListCredentials(ctx context.Context, serviceName string) ([]string, error) {
	return f.primary.ListCredentials(ctx, serviceName)
}

// Hosted delegates to the primary store.
func (f *FallbackStore) Hosted() bool {
	return f.primary.Hosted()
}
