package networking

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// IsLocalhost returns true if the host refers to the local machine.
func IsLocalhost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(host)
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// ValidateEndpointURL validates that a URL is well formed and uses HTTPS.
// Localhost endpoints are exempt from the HTTPS requirement.
func ValidateEndpointURL(endpoint string) error {
	return ValidateEndpointURLWithInsecure(endpoint, false)
}

// ValidateEndpointURLWithInsecure validates an endpoint URL, optionally
// allowing plain HTTP for non-localhost hosts (testing only).
func ValidateEndpointURLWithInsecure(endpoint string, insecureAllowHTTP bool) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("malformed URL %q: %w", endpoint, err)
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("unsupported URL scheme %q in %q", u.Scheme, endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in URL %q", endpoint)
	}
	if u.Scheme == "http" && !IsLocalhost(u.Host) && !insecureAllowHTTP {
		return fmt.Errorf("endpoint must use HTTPS: %s", endpoint)
	}

	return nil
}
