package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/grantflow/grantflow/pkg/errors"
	"github.com/grantflow/grantflow/pkg/networking"
)

// maxTokenResponseSize bounds the token endpoint response body.
const maxTokenResponseSize = 1 << 20

// postTokenEndpoint POSTs a form-encoded grant request to a provider's token
// endpoint and returns the decoded response after validating it is
// success-shaped. Network failures surface as transport errors, provider
// rejections as token exchange errors.
func postTokenEndpoint(
	ctx context.Context,
	client networking.HTTPClient,
	tokenURL string,
	data url.Values,
	headers http.Header,
) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, errors.NewInternalError("failed to build token request", err)
	}
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	if client == nil {
		client = networking.DefaultClient()
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.NewTransportError(
			fmt.Sprintf("token endpoint %s unreachable", tokenURL), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseSize))
	if err != nil {
		return nil, errors.NewTransportError("failed to read token response", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		// Providers return plain-text bodies on some failures; keep a
		// truncated copy in the message for the operator.
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, errors.NewTokenExchangeError(
			fmt.Sprintf("token endpoint returned HTTP %d with non-JSON body: %s", resp.StatusCode, snippet), err)
	}

	if errCode, ok := raw["error"].(string); ok && errCode != "" {
		desc, _ := raw["error_description"].(string)
		if desc == "" {
			desc = "no error description provided"
		}
		return nil, errors.NewTokenExchangeError(
			fmt.Sprintf("provider rejected the grant: %s (%s)", errCode, desc), nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewTokenExchangeError(
			fmt.Sprintf("token endpoint returned HTTP %d", resp.StatusCode), nil)
	}
	if token, ok := raw["access_token"].(string); !ok || token == "" {
		return nil, errors.NewTokenExchangeError("token response is missing access_token", nil)
	}

	return raw, nil
}
