package credentials

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackStorePrefersPrimary(t *testing.T) {
	primary := newTestLocalStore(t)
	ctx := context.Background()
	require.NoError(t, primary.SaveCredential(ctx, "sendgrid", "alice", &Credential{AccessToken: "stored"}))

	t.Setenv(EnvVarPrefix+"SENDGRID", "SG.env-key")

	store := NewFallbackStore(primary)
	cred, err := store.GetCredential(ctx, "sendgrid", "alice")
	require.NoError(t, err)
	assert.Equal(t, "stored", cred.AccessToken)
	assert.False(t, cred.Bare())
}

func TestFallbackStoreEnvVar(t *testing.T) {
	t.Setenv(EnvVarPrefix+"SENDGRID", "SG.env-key")

	store := NewFallbackStore(newTestLocalStore(t))
	cred, err := store.GetCredential(context.Background(), "sendgrid", "alice")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.True(t, cred.Bare())
	assert.Equal(t, "SG.env-key", cred.AccessToken)
}

func TestFallbackStoreEnvKeyNormalization(t *testing.T) {
	t.Setenv(EnvVarPrefix+"GOOGLE_DRIVE", "key")

	store := NewFallbackStore(newTestLocalStore(t))
	cred, err := store.GetCredential(context.Background(), "google-drive", "alice")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "key", cred.AccessToken)
}

func TestFallbackStoreNothingAnywhere(t *testing.T) {
	store := NewFallbackStore(newTestLocalStore(t))
	cred, err := store.GetCredential(context.Background(), "no-such-service-xyz", "alice")
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestFallbackStoreNeverListsEnvSecrets(t *testing.T) {
	t.Setenv(EnvVarPrefix+"SENDGRID", "SG.env-key")

	store := NewFallbackStore(newTestLocalStore(t))
	users, err := store.ListCredentials(context.Background(), "sendgrid")
	require.NoError(t, err)
	assert.Empty(t, users)
}
