package collector

import (
	"net/http"
	"net/url"
	"time"
)

// Fetcher retrieves the current price of a pool pair from one source.
type Fetcher interface {
	FetchCurrentPrice(symbol string) (float64, error)
	Name() string
}

// newHTTPClient builds a client for a price source, routed through proxyURL
// when it parses.
func newHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}
