package collector

import (
	"fmt"
	"math"
	"sync"
	"time"

	"DynamicVault/internal/model"
)

// MockFetcher returns a controllable price for dry runs and testing.
type MockFetcher struct {
	mu    sync.Mutex
	Price float64
	Err   error
}

func (m *MockFetcher) Name() string { return "mock" }

// SetPrice changes the price returned by later fetches.
func (m *MockFetcher) SetPrice(p float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Price = p
}

func (m *MockFetcher) FetchCurrentPrice(_ string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	return m.Price, nil
}

// Collector turns fetcher output into validated price samples.
type Collector struct {
	Fetcher Fetcher
	Symbol  string
	Now     func() time.Time
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, symbol string) *Collector {
	return &Collector{Fetcher: fetcher, Symbol: symbol, Now: time.Now}
}

// Collect fetches the current price for the configured symbol.
func (c *Collector) Collect() (*model.PriceSample, error) {
	price, err := c.Fetcher.FetchCurrentPrice(c.Symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch current price: %w", err)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return nil, fmt.Errorf("%s returned unusable price %v for %s", c.Fetcher.Name(), price, c.Symbol)
	}
	return &model.PriceSample{Symbol: c.Symbol, Price: price, FetchedAt: c.Now()}, nil
}
