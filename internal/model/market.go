package model

import "time"

// PriceSample is a single observation from the price feed.
type PriceSample struct {
	Symbol    string
	Price     float64
	FetchedAt time.Time
}
