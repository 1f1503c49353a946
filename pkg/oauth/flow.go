package oauth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/browser"
	"golang.org/x/oauth2"

	"github.com/grantflow/grantflow/pkg/credentials"
	grterrors "github.com/grantflow/grantflow/pkg/errors"
	"github.com/grantflow/grantflow/pkg/logger"
	"github.com/grantflow/grantflow/pkg/networking"
)

// DefaultCallbackPort is the port connectors register as their redirect URI.
const DefaultCallbackPort = 8080

// DefaultCallbackTimeout bounds the wait for the OAuth redirect so the CLI
// never blocks indefinitely.
const DefaultCallbackTimeout = 120 * time.Second

// CodeSupplier is an alternative authorization-code acquisition strategy for
// headless environments: given the authorization URL, it returns the code
// (e.g. by prompting the operator to paste the redirect URL).
type CodeSupplier func(ctx context.Context, authURL string) (string, error)

// Flow drives one interactive OAuth2 authorization-code exchange.
// A Flow is single-use: it owns a fresh AuthAttempt and must not be reused.
type Flow struct {
	dialect *Dialect
	config  *credentials.OAuthConfig
	attempt *AuthAttempt

	port        int
	redirectURI string
	server      *http.Server

	client       networking.HTTPClient
	timeout      time.Duration
	skipBrowser  bool
	codeSupplier CodeSupplier
}

// FlowOption customizes a Flow.
type FlowOption func(*Flow)

// WithCallbackPort sets the local listener port (0 auto-selects).
func WithCallbackPort(port int) FlowOption {
	return func(f *Flow) {
		f.port = port
	}
}

// WithCallbackTimeout overrides the bounded wait for the redirect.
func WithCallbackTimeout(timeout time.Duration) FlowOption {
	return func(f *Flow) {
		f.timeout = timeout
	}
}

// WithSkipBrowser prints the authorization URL instead of launching the
// system browser.
func WithSkipBrowser() FlowOption {
	return func(f *Flow) {
		f.skipBrowser = true
	}
}

// WithCodeSupplier replaces the local-listener strategy entirely.
func WithCodeSupplier(supplier CodeSupplier) FlowOption {
	return func(f *Flow) {
		f.codeSupplier = supplier
	}
}

// WithHTTPClient overrides the token-endpoint HTTP client. Tests use this.
func WithHTTPClient(client networking.HTTPClient) FlowOption {
	return func(f *Flow) {
		f.client = client
	}
}

// NewFlow creates a single-use flow for a service dialect and operator
// config. PKCE parameters and the CSRF state are generated here, scoped to
// this attempt only.
func NewFlow(dialect *Dialect, config *credentials.OAuthConfig, opts ...FlowOption) (*Flow, error) {
	if dialect == nil {
		return nil, errors.New("dialect cannot be nil")
	}
	if err := dialect.Validate(); err != nil {
		return nil, grterrors.NewConfigurationError("invalid service dialect", err)
	}
	if dialect.APIKeyOnly {
		return nil, grterrors.NewConfigurationError(
			fmt.Sprintf("service %s uses API keys and has no OAuth flow", dialect.Service), nil)
	}
	if config == nil || config.ClientID == "" {
		return nil, grterrors.NewConfigurationError(
			fmt.Sprintf("no OAuth client configured for service %s", dialect.Service), nil)
	}

	attempt, err := NewAuthAttempt(dialect.UsePKCE)
	if err != nil {
		return nil, grterrors.NewInternalError("failed to create authorization attempt", err)
	}

	flow := &Flow{
		dialect: dialect,
		config:  config,
		attempt: attempt,
		port:    DefaultCallbackPort,
		timeout: DefaultCallbackTimeout,
	}
	for _, opt := range opts {
		opt(flow)
	}

	flow.redirectURI = config.Redirect()

	switch {
	case flow.codeSupplier != nil:
		// No local listener; the redirect URI is only sent to the provider.
		if flow.redirectURI == "" {
			flow.redirectURI = fmt.Sprintf("http://localhost:%d/callback", flow.port)
		}
	case flow.redirectURI != "":
		// The URI registered with the provider cannot move, so the listener
		// must bind exactly where it points.
		port, err := listenerPortFor(flow.redirectURI)
		if err != nil {
			return nil, grterrors.NewConfigurationError(
				fmt.Sprintf("invalid redirect URI %q for service %s", flow.redirectURI, dialect.Service), err)
		}
		if !networking.IsAvailable(port) {
			return nil, grterrors.NewConfigurationError(
				fmt.Sprintf("port %d required by redirect URI %s is already in use", port, flow.redirectURI), nil)
		}
		flow.port = port
	default:
		port, err := networking.FindOrUsePort(flow.port)
		if err != nil {
			return nil, fmt.Errorf("failed to find available port: %w", err)
		}
		flow.port = port
		flow.redirectURI = fmt.Sprintf("http://localhost:%d/callback", flow.port)
	}

	return flow, nil
}

// listenerPortFor extracts the listener port from a redirect URI, applying
// the scheme default when none is given.
func listenerPortFor(redirectURI string) (int, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return 0, err
	}
	if u.Host == "" {
		return 0, fmt.Errorf("missing host in redirect URI %q", redirectURI)
	}
	if p := u.Port(); p != "" {
		return strconv.Atoi(p)
	}
	if u.Scheme == "https" {
		return 443, nil
	}
	return 80, nil
}

// callbackPath is the listener path the provider redirects to.
func (f *Flow) callbackPath() string {
	if u, err := url.Parse(f.redirectURI); err == nil && u.Path != "" && u.Path != "/" {
		return u.Path
	}
	return "/callback"
}

// AuthorizationURL returns the full authorization URL for this attempt.
func (f *Flow) AuthorizationURL(scopes []string) string {
	scopes = f.dialect.EffectiveScopes(scopes)
	params := f.dialect.buildAuthParams(f.config, f.attempt, f.redirectURI, scopes)

	// AuthCodeURL handles the query merging against endpoints that already
	// carry query parameters.
	oauth2Config := &oauth2.Config{
		ClientID: f.config.ClientID,
		Endpoint: oauth2.Endpoint{AuthURL: f.dialect.AuthorizationURL(f.config)},
	}
	opts := make([]oauth2.AuthCodeOption, 0, len(params))
	for key := range params {
		if key == "state" {
			continue
		}
		opts = append(opts, oauth2.SetAuthURLParam(key, params.Get(key)))
	}
	return oauth2Config.AuthCodeURL(f.attempt.State, opts...)
}

// Run executes the flow: acquire an authorization code, exchange it for
// tokens, and return the normalized credential. Nothing is persisted here;
// the caller saves the credential only after Run succeeds.
func (f *Flow) Run(ctx context.Context, scopes []string) (*credentials.Credential, error) {
	scopes = f.dialect.EffectiveScopes(scopes)
	authURL := f.AuthorizationURL(scopes)

	var code string
	var err error
	if f.codeSupplier != nil {
		code, err = f.codeSupplier(ctx, authURL)
	} else {
		code, err = f.waitForCallback(ctx, authURL)
	}
	if err != nil {
		return nil, err
	}

	return f.exchange(ctx, scopes, code)
}

// waitForCallback runs the local listener strategy: serve the redirect URI,
// open the browser, and block until exactly one code or error arrives.
func (f *Flow) waitForCallback(ctx context.Context, authURL string) (string, error) {
	codeChan := make(chan string, 1)
	errorChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(f.callbackPath(), f.handleCallback(codeChan, errorChan))
	mux.HandleFunc("/", f.handleRoot())

	f.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", f.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Starting OAuth callback server on port %d", f.port)
		if err := f.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorChan <- fmt.Errorf("failed to start callback server: %w", err)
		}
	}()

	// The listener is torn down as soon as one code is produced, on every
	// return path.
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := f.server.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("Failed to shutdown OAuth callback server: %v", err)
		}
	}()

	if !f.skipBrowser {
		logger.Infof("Opening browser to: %s", authURL)
		if err := browser.OpenURL(authURL); err != nil {
			logger.Warnf("Failed to open browser: %v", err)
			logger.Infof("Please manually open this URL in your browser: %s", authURL)
		}
	} else {
		logger.Infof("Please open this URL in your browser: %s", authURL)
	}

	logger.Info("Waiting for OAuth callback...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case code := <-codeChan:
		return code, nil
	case err := <-errorChan:
		return "", err
	case <-time.After(f.timeout):
		return "", grterrors.NewCallbackTimeoutError(
			fmt.Sprintf("no OAuth redirect received within %s; re-run the auth command to retry", f.timeout), nil)
	case <-ctx.Done():
		return "", fmt.Errorf("OAuth flow cancelled: %w", ctx.Err())
	case sig := <-sigChan:
		return "", fmt.Errorf("OAuth flow interrupted by signal: %v", sig)
	}
}

// exchange swaps the authorization code for tokens and normalizes the
// response through the dialect.
func (f *Flow) exchange(ctx context.Context, scopes []string, code string) (*credentials.Credential, error) {
	data := f.dialect.buildTokenData(f.config, f.attempt, f.redirectURI, scopes, code)
	headers := f.dialect.buildTokenHeaders(f.config)

	raw, err := postTokenEndpoint(ctx, f.client, f.dialect.TokenEndpoint(f.config), data, headers)
	if err != nil {
		return nil, err
	}

	cred, err := f.dialect.processToken(raw, time.Now())
	if err != nil {
		return nil, grterrors.NewTokenExchangeError("failed to normalize token response", err)
	}

	logIdentityHint(cred, raw)
	logger.Info("OAuth flow completed successfully")
	return cred, nil
}

// logIdentityHint surfaces who just authenticated when the provider returned
// a JWT we can read. Claims are parsed without verification; they are only
// used for operator feedback, never for authorization.
func logIdentityHint(cred *credentials.Credential, raw map[string]any) {
	tokenString := cred.AccessToken
	if idToken, ok := raw["id_token"].(string); ok && idToken != "" {
		tokenString = idToken
	}

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		logger.Debugf("Token is opaque, no identity hint available: %v", err)
		return
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok {
		if sub, err := claims.GetSubject(); err == nil && sub != "" {
			logger.Debugw("Authenticated principal", "subject", sub)
		}
	}
}

// handleCallback handles the OAuth redirect. The code is validated and
// handed off; the token exchange happens on the flow goroutine. Only the
// first result matters: sends are non-blocking so a late or duplicate
// redirect never wedges a handler goroutine after the wait has returned.
func (f *Flow) handleCallback(codeChan chan<- string, errorChan chan<- error) http.HandlerFunc {
	sendErr := func(err error) {
		select {
		case errorChan <- err:
		default:
		}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		if errParam := query.Get("error"); errParam != "" {
			errDesc := query.Get("error_description")
			err := grterrors.NewTokenExchangeError(
				fmt.Sprintf("provider returned %s: %s", errParam, errDesc), nil)
			f.writeErrorPage(w, err)
			sendErr(err)
			return
		}

		if state := query.Get("state"); state != f.attempt.State {
			err := errors.New("invalid state parameter")
			f.writeErrorPage(w, err)
			sendErr(err)
			return
		}

		code := query.Get("code")
		if code == "" {
			err := errors.New("missing authorization code")
			f.writeErrorPage(w, err)
			sendErr(err)
			return
		}

		f.writeSuccessPage(w)
		select {
		case codeChan <- code:
		default:
		}
	}
}

// PromptCodeSupplier returns a CodeSupplier that prints the authorization
// URL and reads the pasted redirect URL (or bare code) from in. This is the
// headless fallback for machines without a browser.
func PromptCodeSupplier(in io.Reader, out io.Writer) CodeSupplier {
	return func(_ context.Context, authURL string) (string, error) {
		fmt.Fprintf(out, "Open this URL in a browser and authorize the application:\n\n  %s\n\n", authURL)
		fmt.Fprint(out, "Paste the full redirect URL (or just the code): ")

		scanner := bufio.NewScanner(in)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", fmt.Errorf("failed to read authorization code: %w", err)
			}
			return "", errors.New("no authorization code provided")
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			return "", errors.New("no authorization code provided")
		}

		// Accept either the raw code or the full redirect URL.
		if u, err := url.Parse(input); err == nil && u.Query().Get("code") != "" {
			if errParam := u.Query().Get("error"); errParam != "" {
				return "", grterrors.NewTokenExchangeError(
					fmt.Sprintf("provider returned %s: %s", errParam, u.Query().Get("error_description")), nil)
			}
			return u.Query().Get("code"), nil
		}
		return input, nil
	}
}

// setSecurityHeaders sets common security headers for all responses
func (*Flow) setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'; script-src 'none'; object-src 'none';")
}

// handleRoot handles requests to the root path
func (f *Flow) handleRoot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		f.setSecurityHeaders(w)
		htmlContent := `
<!DOCTYPE html>
<html>
<head>
    <title>grantflow</title>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; text-align: center; }
        .container { max-width: 600px; margin: 0 auto; }
        .message { padding: 20px; border-radius: 5px; margin: 20px 0; }
        .info { background-color: #e7f3ff; border: 1px solid #b3d9ff; color: #0066cc; }
    </style>
</head>
<body>
    <div class="container">
        <h1>grantflow Authentication</h1>
        <div class="message info">
            <p>OAuth callback server is running. Please complete the authentication flow in your browser.</p>
        </div>
    </div>
</body>
</html>`
		if _, err := w.Write([]byte(htmlContent)); err != nil {
			logger.Warnf("Failed to write HTML content: %v", err)
		}
	}
}

// writeSuccessPage writes a success page to the response
func (f *Flow) writeSuccessPage(w http.ResponseWriter) {
	f.setSecurityHeaders(w)
	htmlContent := `
<!DOCTYPE html>
<html>
<head>
    <title>Authentication Successful</title>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; text-align: center; }
        .container { max-width: 600px; margin: 0 auto; }
        .message { padding: 20px; border-radius: 5px; margin: 20px 0; }
        .success { background-color: #e7f6e7; border: 1px solid #b3e6b3; color: #006600; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Authentication Successful!</h1>
        <div class="message success">
            <p>You can now close this window and return to the terminal.</p>
        </div>
    </div>
</body>
</html>`
	if _, err := w.Write([]byte(htmlContent)); err != nil {
		logger.Warnf("Failed to write HTML content: %v", err)
	}
}

// writeErrorPage writes an error page to the response
func (f *Flow) writeErrorPage(w http.ResponseWriter, err error) {
	f.setSecurityHeaders(w)
	w.WriteHeader(http.StatusBadRequest)

	// HTML escape the error message to prevent XSS
	escapedError := html.EscapeString(err.Error())
	htmlContent := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <title>Authentication Failed</title>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; text-align: center; }
        .container { max-width: 600px; margin: 0 auto; }
        .message { padding: 20px; border-radius: 5px; margin: 20px 0; }
        .error { background-color: #ffe7e7; border: 1px solid #ffb3b3; color: #cc0000; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Authentication Failed</h1>
        <div class="message error">
            <p>%s</p>
            <p>Please try again or contact support if the problem persists.</p>
        </div>
    </div>
</body>
</html>`, escapedError)
	if _, err := w.Write([]byte(htmlContent)); err != nil {
		logger.Warnf("Failed to write HTML content: %v", err)
	}
}
