package vault

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"DynamicVault/internal/model"
)

// PoolAdapter is the concentrated-liquidity pool surface the vault drives.
// Positions are addressed by the vault key. Each call is atomic from the
// vault's point of view.
type PoolAdapter interface {
	AddLiquidity(ctx context.Context, vault solana.PublicKey, amount uint64, bins model.Bins) error
	// RemoveLiquidity withdraws everything held in bins.
	RemoveLiquidity(ctx context.Context, vault solana.PublicKey, bins model.Bins) error
	RemoveLiquidityAmount(ctx context.Context, vault solana.PublicKey, amount uint64, bins model.Bins) error
	PositionLiquidity(ctx context.Context, vault solana.PublicKey) (uint64, error)
	// PendingFees quotes what HarvestFee would claim right now.
	PendingFees(ctx context.Context, vault solana.PublicKey) (uint64, error)
	HarvestFee(ctx context.Context, vault solana.PublicKey, feeAccount solana.PublicKey) (uint64, error)
}

// Settler moves withdrawn liquidity to the requesting party.
type Settler interface {
	Settle(ctx context.Context, vault, recipient solana.PublicKey, liquidity uint64) error
}

// Store persists vault records between runs.
type Store interface {
	Load(ctx context.Context) ([]model.Vault, error)
	Save(ctx context.Context, v model.Vault) error
}
