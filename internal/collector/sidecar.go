package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// SidecarFetcher reads the active price of a pool pair from the pool sidecar,
// the same service the HTTP pool adapter drives.
type SidecarFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewSidecarFetcher creates a new fetcher with optional proxy support.
func NewSidecarFetcher(baseURL, apiKey, proxyURL string) *SidecarFetcher {
	return &SidecarFetcher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  newHTTPClient(proxyURL, 10*time.Second),
	}
}

func (f *SidecarFetcher) Name() string { return "sidecar" }

// sidecarQuote is the price payload served for a pool pair.
type sidecarQuote struct {
	Pair      string  `json:"pair"`
	Price     float64 `json:"price"`
	ActiveBin int32   `json:"active_bin"`
	Timestamp int64   `json:"timestamp"`
}

func (f *SidecarFetcher) FetchCurrentPrice(pair string) (float64, error) {
	endpoint := fmt.Sprintf("%s/api/v1/pairs/%s/price", f.BaseURL, url.PathEscape(pair))
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("sidecar price: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("sidecar price: status %d, body: %s", resp.StatusCode, string(body))
	}
	var q sidecarQuote
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		return 0, fmt.Errorf("decode sidecar price: %w", err)
	}
	if q.Pair != "" && q.Pair != pair {
		return 0, fmt.Errorf("sidecar price: asked for %s, got %s", pair, q.Pair)
	}
	return q.Price, nil
}
