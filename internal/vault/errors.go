package vault

import "errors"

// Guard failures. Every rejected operation returns (a wrap of) exactly one of these.
var (
	ErrInvalidThreshold       = errors.New("threshold must be between 1-100")
	ErrInvalidParameter       = errors.New("invalid parameter value")
	ErrFeeOverflow            = errors.New("fee calculation overflow")
	ErrMaxFeeExceeded         = errors.New("maximum fee amount exceeded")
	ErrRebalanceTooFrequent   = errors.New("rebalance too frequent")
	ErrInvalidBins            = errors.New("invalid bin range")
	ErrStalePrice             = errors.New("price data is too stale")
	ErrInvalidSharePercentage = errors.New("invalid share percentage")

	ErrUnauthorized   = errors.New("caller is not the vault admin")
	ErrVaultNotFound  = errors.New("vault not found")
	ErrVaultExists    = errors.New("vault already initialized")
	ErrInvalidPrice   = errors.New("price must be a finite positive number")
	ErrTimeRegression = errors.New("timestamp precedes last price update")
	ErrAdapter        = errors.New("pool adapter failure")
	ErrPersist        = errors.New("persist vault")
	ErrSettlement     = errors.New("settle withdrawal")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrInvalidThreshold, "InvalidThreshold"},
	{ErrInvalidParameter, "InvalidParameter"},
	{ErrFeeOverflow, "FeeOverflow"},
	{ErrMaxFeeExceeded, "MaxFeeExceeded"},
	{ErrRebalanceTooFrequent, "RebalanceTooFrequent"},
	{ErrInvalidBins, "InvalidBins"},
	{ErrStalePrice, "StalePrice"},
	{ErrInvalidSharePercentage, "InvalidSharePercentage"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrVaultNotFound, "VaultNotFound"},
	{ErrVaultExists, "VaultExists"},
	{ErrInvalidPrice, "InvalidPrice"},
	{ErrTimeRegression, "TimeRegression"},
	{ErrAdapter, "AdapterFailure"},
	{ErrPersist, "PersistFailure"},
	{ErrSettlement, "SettlementFailure"},
}

// Kind returns the short failure name for err, "ok" for nil and "unknown" otherwise.
func Kind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "unknown"
}
