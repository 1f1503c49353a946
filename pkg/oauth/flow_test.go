package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantflow/grantflow/pkg/credentials"
	grterrors "github.com/grantflow/grantflow/pkg/errors"
	"github.com/grantflow/grantflow/pkg/networking"
)

func testDialect(tokenURL string) *Dialect {
	return &Dialect{
		Service:       "asana",
		AuthURL:       "https://app.example.com/oauth/authorize",
		TokenURL:      tokenURL,
		DefaultScopes: []string{"default"},
	}
}

func TestNewFlowValidation(t *testing.T) {
	t.Parallel()

	cfg := &credentials.OAuthConfig{ClientID: "id"}

	t.Run("nil dialect", func(t *testing.T) {
		t.Parallel()
		_, err := NewFlow(nil, cfg)
		assert.Error(t, err)
	})

	t.Run("api-key service has no flow", func(t *testing.T) {
		t.Parallel()
		_, err := NewFlow(&Dialect{Service: "sendgrid", APIKeyOnly: true}, cfg)
		require.Error(t, err)
		assert.True(t, grterrors.IsConfiguration(err))
	})

	t.Run("missing client config", func(t *testing.T) {
		t.Parallel()
		_, err := NewFlow(testDialect("https://t.example.com"), &credentials.OAuthConfig{})
		require.Error(t, err)
		assert.True(t, grterrors.IsConfiguration(err))
	})
}

func TestFlowAuthorizationURL(t *testing.T) {
	t.Parallel()

	dialect := testDialect("https://t.example.com")
	dialect.UsePKCE = true
	cfg := &credentials.OAuthConfig{ClientID: "client-id"}

	flow, err := NewFlow(dialect, cfg, WithCallbackPort(0))
	require.NoError(t, err)

	authURL := flow.AuthorizationURL([]string{"scope-a", "scope-b"})
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)

	q := parsed.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "scope-a scope-b", q.Get("scope"))
	assert.NotEmpty(t, q.Get("state"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.Equal(t, PKCEMethodS256, q.Get("code_challenge_method"))
	assert.True(t, strings.HasPrefix(q.Get("redirect_uri"), "http://localhost:"))
}

func TestFlowRunWithCodeSupplier(t *testing.T) {
	t.Parallel()

	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "AT1",
			"refresh_token": "RT1",
			"token_type":    "bearer",
			"expires_in":    3600,
		}))
	}))
	t.Cleanup(srv.Close)

	dialect := testDialect(srv.URL)
	cfg := &credentials.OAuthConfig{ClientID: "client-id", ClientSecret: "client-secret"}

	flow, err := NewFlow(dialect, cfg, WithCodeSupplier(func(_ context.Context, authURL string) (string, error) {
		assert.Contains(t, authURL, "client_id=client-id")
		return "the-code", nil
	}))
	require.NoError(t, err)

	cred, err := flow.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, "AT1", cred.AccessToken)
	assert.Equal(t, "RT1", cred.RefreshToken)
	assert.NotZero(t, cred.ExpiresAt)

	assert.Equal(t, "authorization_code", gotForm.Get("grant_type"))
	assert.Equal(t, "the-code", gotForm.Get("code"))
	assert.Equal(t, "client-secret", gotForm.Get("client_secret"))
}

func TestFlowRunWithCallback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"access_token": "AT1",
			"expires_in":   3600,
		}))
	}))
	t.Cleanup(srv.Close)

	dialect := testDialect(srv.URL)
	cfg := &credentials.OAuthConfig{ClientID: "client-id"}

	flow, err := NewFlow(dialect, cfg, WithCallbackPort(0), WithSkipBrowser(), WithCallbackTimeout(10*time.Second))
	require.NoError(t, err)

	// The state lives in the authorization URL; a real provider echoes it
	// back on the redirect.
	authURL, err := url.Parse(flow.AuthorizationURL(nil))
	require.NoError(t, err)
	state := authURL.Query().Get("state")
	require.NotEmpty(t, state)

	type result struct {
		cred *credentials.Credential
		err  error
	}
	done := make(chan result, 1)
	go func() {
		cred, err := flow.Run(context.Background(), nil)
		done <- result{cred, err}
	}()

	callback := fmt.Sprintf("http://localhost:%d/callback?code=the-code&state=%s", flow.port, url.QueryEscape(state))
	simulateRedirect(t, callback)

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, "AT1", res.cred.AccessToken)
	case <-time.After(15 * time.Second):
		t.Fatal("flow did not complete")
	}
}

func TestFlowHonorsConfiguredRedirectURI(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Contains(t, r.PostForm.Get("redirect_uri"), "/oauth/callback")
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"access_token": "AT1",
			"expires_in":   3600,
		}))
	}))
	t.Cleanup(srv.Close)

	// An operator-registered redirect URI on a non-default port and path:
	// the listener must bind exactly there.
	registeredPort := networking.FindAvailable()
	require.NotZero(t, registeredPort)
	redirectURI := fmt.Sprintf("http://localhost:%d/oauth/callback", registeredPort)

	dialect := testDialect(srv.URL)
	cfg := &credentials.OAuthConfig{ClientID: "client-id", RedirectURI: redirectURI}

	flow, err := NewFlow(dialect, cfg, WithSkipBrowser(), WithCallbackTimeout(10*time.Second))
	require.NoError(t, err)
	assert.Equal(t, registeredPort, flow.port)
	assert.Equal(t, redirectURI, flow.redirectURI)

	authURL, err := url.Parse(flow.AuthorizationURL(nil))
	require.NoError(t, err)
	assert.Equal(t, redirectURI, authURL.Query().Get("redirect_uri"))
	state := authURL.Query().Get("state")
	require.NotEmpty(t, state)

	type result struct {
		cred *credentials.Credential
		err  error
	}
	done := make(chan result, 1)
	go func() {
		cred, err := flow.Run(context.Background(), nil)
		done <- result{cred, err}
	}()

	callback := fmt.Sprintf("%s?code=the-code&state=%s", redirectURI, url.QueryEscape(state))
	simulateRedirect(t, callback)

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, "AT1", res.cred.AccessToken)
	case <-time.After(15 * time.Second):
		t.Fatal("flow did not complete")
	}
}

func TestFlowRejectsBusyRedirectURIPort(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer listener.Close()
	busy := listener.Addr().(*net.TCPAddr).Port

	dialect := testDialect("https://t.example.com")
	cfg := &credentials.OAuthConfig{
		ClientID:    "client-id",
		RedirectURI: fmt.Sprintf("http://localhost:%d/callback", busy),
	}

	// The registered URI cannot move, so a busy port is a hard failure, not
	// a silent fallback to some other port.
	_, err = NewFlow(dialect, cfg)
	require.Error(t, err)
	assert.True(t, grterrors.IsConfiguration(err))
	assert.Contains(t, err.Error(), fmt.Sprint(busy))
}

func TestFlowRejectsForgedState(t *testing.T) {
	t.Parallel()

	dialect := testDialect("https://t.example.com")
	cfg := &credentials.OAuthConfig{ClientID: "client-id"}

	flow, err := NewFlow(dialect, cfg, WithCallbackPort(0), WithSkipBrowser(), WithCallbackTimeout(10*time.Second))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := flow.Run(context.Background(), nil)
		done <- err
	}()

	callback := fmt.Sprintf("http://localhost:%d/callback?code=the-code&state=forged", flow.port)
	simulateRedirect(t, callback)

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "state")
	case <-time.After(15 * time.Second):
		t.Fatal("flow did not complete")
	}
}

func TestFlowSurfacesProviderDenial(t *testing.T) {
	t.Parallel()

	dialect := testDialect("https://t.example.com")
	cfg := &credentials.OAuthConfig{ClientID: "client-id"}

	flow, err := NewFlow(dialect, cfg, WithCallbackPort(0), WithSkipBrowser(), WithCallbackTimeout(10*time.Second))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := flow.Run(context.Background(), nil)
		done <- err
	}()

	callback := fmt.Sprintf(
		"http://localhost:%d/callback?error=access_denied&error_description=user+said+no", flow.port)
	simulateRedirect(t, callback)

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, grterrors.IsTokenExchange(err))
		assert.Contains(t, err.Error(), "access_denied")
	case <-time.After(15 * time.Second):
		t.Fatal("flow did not complete")
	}
}

func TestFlowCallbackTimeout(t *testing.T) {
	t.Parallel()

	dialect := testDialect("https://t.example.com")
	cfg := &credentials.OAuthConfig{ClientID: "client-id"}

	flow, err := NewFlow(dialect, cfg, WithCallbackPort(0), WithSkipBrowser(), WithCallbackTimeout(100*time.Millisecond))
	require.NoError(t, err)

	_, err = flow.Run(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, grterrors.IsCallbackTimeout(err))
}

func TestFlowContextCancellation(t *testing.T) {
	t.Parallel()

	dialect := testDialect("https://t.example.com")
	cfg := &credentials.OAuthConfig{ClientID: "client-id"}

	flow, err := NewFlow(dialect, cfg, WithCallbackPort(0), WithSkipBrowser(), WithCallbackTimeout(30*time.Second))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := flow.Run(ctx, nil)
		done <- err
	}()

	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("flow did not observe cancellation")
	}
}

// simulateRedirect plays the provider's part: wait for the callback server to
// come up, then deliver the redirect.
func simulateRedirect(t *testing.T, callbackURL string) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(callbackURL) // #nosec G107 - local test URL
		if err == nil {
			resp.Body.Close()
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("callback server never came up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestCallbackHandlerToleratesLateRedirects(t *testing.T) {
	t.Parallel()

	dialect := testDialect("https://t.example.com")
	cfg := &credentials.OAuthConfig{ClientID: "client-id"}

	flow, err := NewFlow(dialect, cfg, WithCallbackPort(0))
	require.NoError(t, err)

	codeChan := make(chan string, 1)
	errorChan := make(chan error, 1)
	handler := flow.handleCallback(codeChan, errorChan)

	// Deliver several redirects with nobody draining the channels, as happens
	// when the wait has already returned. Every handler call must complete.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			req := httptest.NewRequest(http.MethodGet, "/callback?code=the-code&state="+flow.attempt.State, nil)
			handler(httptest.NewRecorder(), req)
		}
		for i := 0; i < 3; i++ {
			req := httptest.NewRequest(http.MethodGet, "/callback?error=access_denied", nil)
			handler(httptest.NewRecorder(), req)
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("late redirect blocked a handler goroutine")
	}

	// The first result of each kind is still delivered.
	assert.Equal(t, "the-code", <-codeChan)
	assert.Error(t, <-errorChan)
}

func TestPromptCodeSupplier(t *testing.T) {
	t.Parallel()

	t.Run("full redirect URL", func(t *testing.T) {
		t.Parallel()
		in := strings.NewReader("http://localhost:8080/callback?code=abc123&state=xyz\n")
		supplier := PromptCodeSupplier(in, &strings.Builder{})
		code, err := supplier(context.Background(), "https://provider.example.com/authorize")
		require.NoError(t, err)
		assert.Equal(t, "abc123", code)
	})

	t.Run("bare code", func(t *testing.T) {
		t.Parallel()
		in := strings.NewReader("abc123\n")
		supplier := PromptCodeSupplier(in, &strings.Builder{})
		code, err := supplier(context.Background(), "https://provider.example.com/authorize")
		require.NoError(t, err)
		assert.Equal(t, "abc123", code)
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()
		in := strings.NewReader("\n")
		supplier := PromptCodeSupplier(in, &strings.Builder{})
		_, err := supplier(context.Background(), "https://provider.example.com/authorize")
		assert.Error(t, err)
	})

	t.Run("prompt includes authorization URL", func(t *testing.T) {
		t.Parallel()
		var out strings.Builder
		in := strings.NewReader("abc123\n")
		supplier := PromptCodeSupplier(in, &out)
		_, err := supplier(context.Background(), "https://provider.example.com/authorize?client_id=x")
		require.NoError(t, err)
		assert.Contains(t, out.String(), "https://provider.example.com/authorize?client_id=x")
	})
}
