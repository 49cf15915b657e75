// Package netclient builds the HTTP clients used for outbound requests.
package netclient

import (
	"net/http"
	"net/url"
	"time"
)

// New returns a client with its own transport. A non-empty proxyURL routes
// every request through that proxy; otherwise, or when proxyURL does not
// parse, the usual proxy environment variables apply.
func New(proxyURL string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyFromEnvironment
	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}
