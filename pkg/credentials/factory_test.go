package credentials

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironmentDefaultsToLocal(t *testing.T) {
	t.Setenv(EnvironmentVar, "")
	assert.Equal(t, LocalEnvironment, Environment())
}

func TestEnvironmentFromEnvVar(t *testing.T) {
	t.Setenv(EnvironmentVar, "gumloop")
	assert.Equal(t, "gumloop", Environment())
}

func TestNewStoreWithStoreOverride(t *testing.T) {
	t.Setenv(EnvironmentVar, "gumloop")

	injected := newTestLocalStore(t)
	store, err := NewStore(WithStore(injected))
	require.NoError(t, err)
	assert.Same(t, Store(injected), store, "injected store is returned as-is, unwrapped")
}

func TestNewStoreLocalEnvironment(t *testing.T) {
	t.Setenv(EnvironmentVar, LocalEnvironment)

	store, err := NewStore()
	require.NoError(t, err)
	assert.False(t, store.Hosted())
}

func TestNewStoreHostedEnvironment(t *testing.T) {
	t.Setenv(EnvironmentVar, "gumloop")
	t.Setenv(PlatformURLVar, "http://localhost:9999")
	t.Setenv(PlatformAPIKeyVar, "ambient-key")

	store, err := NewStore()
	require.NoError(t, err)
	assert.True(t, store.Hosted())
}

func TestNewStoreHostedFallsBackWhenUnconfigured(t *testing.T) {
	t.Setenv(EnvironmentVar, "gumloop")
	t.Setenv(PlatformURLVar, "")
	t.Setenv(PlatformAPIKeyVar, "")

	// A hosted environment without platform coordinates must not fail: the
	// local store takes over.
	store, err := NewStore()
	require.NoError(t, err)
	assert.False(t, store.Hosted())
}

func TestNewStorePerRequestAPIKey(t *testing.T) {
	t.Setenv(EnvironmentVar, "gumloop")
	t.Setenv(PlatformURLVar, "http://localhost:9999")
	t.Setenv(PlatformAPIKeyVar, "")

	// The per-request key alone is enough for the hosted store.
	store, err := NewStore(WithAPIKey("request-key"))
	require.NoError(t, err)
	assert.True(t, store.Hosted())
}

func TestNewStoreWrapsWithEnvFallback(t *testing.T) {
	t.Setenv(EnvironmentVar, LocalEnvironment)
	t.Setenv(EnvVarPrefix+"SENDGRID", "SG.env-key")

	store, err := NewStore()
	require.NoError(t, err)

	cred, err := store.GetCredential(context.Background(), "sendgrid", "anyone")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.True(t, cred.Bare())
	assert.Equal(t, "SG.env-key", cred.AccessToken)
}
