package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// YahooFetcher reads the live quote of the pair's base asset from the Yahoo
// Finance chart API. It is a fallback for when no pool sidecar is running.
type YahooFetcher struct {
	Client  *http.Client
	BaseURL string
	// Tickers maps pool pairs to Yahoo tickers; unmapped pairs are sent as is.
	Tickers map[string]string
	// MaxQuoteAge rejects quotes whose market timestamp is older. Zero disables the check.
	MaxQuoteAge time.Duration
	Now         func() time.Time
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(proxyURL string) *YahooFetcher {
	return &YahooFetcher{
		Client:  newHTTPClient(proxyURL, 30*time.Second),
		BaseURL: "https://query1.finance.yahoo.com",
		Tickers: map[string]string{
			"SOL/USDC": "SOL-USD",
			"SOL-USDC": "SOL-USD",
			"JUP/USDC": "JUP29210-USD",
			"JUP-USDC": "JUP29210-USD",
		},
		MaxQuoteAge: 5 * time.Minute,
		Now:         time.Now,
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				RegularMarketTime  int64   `json:"regularMarketTime"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (f *YahooFetcher) FetchCurrentPrice(pair string) (float64, error) {
	ticker, ok := f.Tickers[pair]
	if !ok {
		ticker = pair
	}
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1m&range=1d", f.BaseURL, url.PathEscape(ticker))
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("yahoo quote %s: %w", ticker, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("yahoo quote %s: status %d, body: %s", ticker, resp.StatusCode, string(body))
	}

	var chart chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return 0, fmt.Errorf("decode yahoo quote: %w", err)
	}
	if chart.Chart.Error != nil {
		return 0, fmt.Errorf("yahoo quote %s: %s", ticker, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return 0, fmt.Errorf("yahoo quote %s: empty result", ticker)
	}
	meta := chart.Chart.Result[0].Meta
	if f.MaxQuoteAge > 0 && meta.RegularMarketTime > 0 {
		if age := f.Now().Sub(time.Unix(meta.RegularMarketTime, 0)); age > f.MaxQuoteAge {
			return 0, fmt.Errorf("yahoo quote %s is %s old", ticker, age.Truncate(time.Second))
		}
	}
	return meta.RegularMarketPrice, nil
}
