package model

import "github.com/gagliardetto/solana-go"

// StalenessWindow is the maximum age in seconds of the recorded price sample.
const StalenessWindow int64 = 30

// LayoutVersion is written into the version byte of every persisted account.
const LayoutVersion uint8 = 1

// Bins is a liquidity range [lower, upper] in pool ticks.
type Bins [2]int32

// NoBins marks the absence of a staged rebalance candidate.
var NoBins = Bins{0, 0}

func (b Bins) Lower() int32 { return b[0] }
func (b Bins) Upper() int32 { return b[1] }

// IsSet reports whether both bounds are non-zero.
func (b Bins) IsSet() bool { return b[0] != 0 && b[1] != 0 }

// Ordered reports whether lower < upper.
func (b Bins) Ordered() bool { return b[0] < b[1] }

// Valid reports whether b is a usable range: both bounds set and ordered.
func (b Bins) Valid() bool { return b.IsSet() && b.Ordered() }

// Vault is the persisted record of a single managed position.
// Field order matches the on-disk account layout.
type Vault struct {
	Admin                solana.PublicKey `json:"admin"`
	CurrentBins          Bins             `json:"current_bins"`
	PendingRebalanceBins Bins             `json:"pending_rebalance_bins"`
	LastRebalanceTime    int64            `json:"last_rebalance_time"`
	LastFeeHarvestTime   int64            `json:"last_fee_harvest_time"`
	TotalFeesEarned      uint64           `json:"total_fees_earned"`
	MaxFeeAmount         uint64           `json:"max_fee_amount"`
	Version              uint8            `json:"version"`
	FeeTokenAccount      solana.PublicKey `json:"fee_token_account"`
	RebalanceThreshold   uint8            `json:"rebalance_threshold"`
	MinRebalanceDelay    int64            `json:"min_rebalance_delay"`
	LastPrice            float64          `json:"last_price"`
	PriceUpdateTime      int64            `json:"price_update_time"`
}

// HasCandidate reports whether a rebalance candidate is staged.
func (v *Vault) HasCandidate() bool { return v.PendingRebalanceBins.IsSet() }

// PriceAge returns the age in seconds of the recorded price sample at now.
func (v *Vault) PriceAge(now int64) int64 { return now - v.PriceUpdateTime }
