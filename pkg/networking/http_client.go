package networking

import (
	"net/http"
	"time"
)

// HttpTimeout is the timeout for outgoing HTTP requests
const HttpTimeout = 30 * time.Second

// HTTPClient is the interface for the HTTP client used by grantflow,
// satisfied by *http.Client and by test doubles.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultClient returns an HTTP client with bounded timeouts so a connector
// never hangs indefinitely waiting on a provider outage.
func DefaultClient() *http.Client {
	return &http.Client{
		Timeout: HttpTimeout,
		Transport: &http.Transport{
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
		},
	}
}
