package networking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLocalhost(t *testing.T) {
	t.Parallel()

	assert.True(t, IsLocalhost("localhost"))
	assert.True(t, IsLocalhost("localhost:8080"))
	assert.True(t, IsLocalhost("127.0.0.1"))
	assert.True(t, IsLocalhost("127.0.0.1:9000"))
	assert.True(t, IsLocalhost("::1"))
	assert.False(t, IsLocalhost("example.com"))
	assert.False(t, IsLocalhost("10.0.0.1"))
}

func TestValidateEndpointURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		endpoint string
		wantErr  bool
	}{
		{"https endpoint", "https://api.example.com/oauth/token", false},
		{"http localhost", "http://localhost:8080/callback", false},
		{"http loopback", "http://127.0.0.1:8080/callback", false},
		{"http non-localhost", "http://api.example.com/oauth/token", true},
		{"unsupported scheme", "ftp://example.com", true},
		{"missing host", "https://", true},
		{"not a URL", "://nope", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateEndpointURL(tt.endpoint)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateEndpointURLWithInsecure(t *testing.T) {
	t.Parallel()

	endpoint := "http://api.example.com/oauth/token"
	assert.Error(t, ValidateEndpointURLWithInsecure(endpoint, false))
	assert.NoError(t, ValidateEndpointURLWithInsecure(endpoint, true))
}
