package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantflow/grantflow/pkg/credentials"
)

func TestGetCredentialsUnknownService(t *testing.T) {
	t.Parallel()

	_, err := GetCredentials(context.Background(), "alice", "no-such-service", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-service")
}

func TestGetCredentialsFromEnvSecret(t *testing.T) {
	t.Setenv(credentials.EnvironmentVar, credentials.LocalEnvironment)
	t.Setenv(credentials.EnvVarPrefix+"SENDGRID", "SG.env-key")

	token, err := GetCredentials(context.Background(), "anyone", "sendgrid", "")
	require.NoError(t, err)
	assert.Equal(t, "SG.env-key", token)
}

func TestGetFullCredentialsFromEnvSecret(t *testing.T) {
	t.Setenv(credentials.EnvironmentVar, credentials.LocalEnvironment)
	t.Setenv(credentials.EnvVarPrefix+"SENDGRID", "SG.env-key")

	cred, err := GetFullCredentials(context.Background(), "anyone", "sendgrid", "")
	require.NoError(t, err)
	assert.True(t, cred.Bare())
	assert.Equal(t, "SG.env-key", cred.AccessToken)
	assert.Equal(t, "Bearer", cred.TokenType)
}

func TestAuthenticateUnknownService(t *testing.T) {
	t.Parallel()

	_, err := AuthenticateAndSaveCredentials(context.Background(), "alice", "no-such-service", nil)
	assert.Error(t, err)
}
