package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"

	"DynamicVault/internal/model"
)

// DefaultFeeRate is the fee a mock position accrues per harvest.
const DefaultFeeRate uint64 = 100

// Position is the mock pool's view of one vault position.
type Position struct {
	Bins      model.Bins
	Liquidity uint64
	Fees      uint64 // claimed so far
}

// MockPool is an in-memory pool used for dry runs and tests.
// Every harvest pays FeeRate; liquidity equals the deposited amount.
type MockPool struct {
	mu        sync.Mutex
	positions map[solana.PublicKey]*Position
	FeeRate   uint64

	// Fail, when set, is returned by the named call ("add", "remove",
	// "remove_amount", "position", "pending", "harvest").
	Fail map[string]error
	// ClaimBonus is added to what HarvestFee pays beyond the quoted pending amount.
	ClaimBonus uint64
	Calls      []string
}

// NewMockPool creates an empty mock pool.
func NewMockPool() *MockPool {
	return &MockPool{
		positions: make(map[solana.PublicKey]*Position),
		FeeRate:   DefaultFeeRate,
		Fail:      make(map[string]error),
	}
}

// Position returns a copy of the vault's position.
func (p *MockPool) Position(vault solana.PublicKey) (Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[vault]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

func (p *MockPool) call(name string) error {
	p.Calls = append(p.Calls, name)
	if err := p.Fail[name]; err != nil {
		return err
	}
	return nil
}

func (p *MockPool) position(vault solana.PublicKey) *Position {
	pos, ok := p.positions[vault]
	if !ok {
		pos = &Position{}
		p.positions[vault] = pos
	}
	return pos
}

func (p *MockPool) AddLiquidity(_ context.Context, vault solana.PublicKey, amount uint64, bins model.Bins) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("add"); err != nil {
		return err
	}
	pos := p.position(vault)
	pos.Bins = bins
	pos.Liquidity += amount
	return nil
}

func (p *MockPool) RemoveLiquidity(_ context.Context, vault solana.PublicKey, bins model.Bins) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("remove"); err != nil {
		return err
	}
	pos := p.position(vault)
	if pos.Liquidity > 0 && pos.Bins != bins {
		return fmt.Errorf("position holds %v, not %v", pos.Bins, bins)
	}
	pos.Liquidity = 0
	return nil
}

func (p *MockPool) RemoveLiquidityAmount(_ context.Context, vault solana.PublicKey, amount uint64, bins model.Bins) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("remove_amount"); err != nil {
		return err
	}
	pos := p.position(vault)
	if amount > pos.Liquidity {
		return errors.New("insufficient liquidity")
	}
	if amount > 0 && pos.Bins != bins {
		return fmt.Errorf("position holds %v, not %v", pos.Bins, bins)
	}
	pos.Liquidity -= amount
	return nil
}

func (p *MockPool) PositionLiquidity(_ context.Context, vault solana.PublicKey) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("position"); err != nil {
		return 0, err
	}
	return p.position(vault).Liquidity, nil
}

func (p *MockPool) PendingFees(_ context.Context, _ solana.PublicKey) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("pending"); err != nil {
		return 0, err
	}
	return p.FeeRate, nil
}

func (p *MockPool) HarvestFee(_ context.Context, vault solana.PublicKey, _ solana.PublicKey) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("harvest"); err != nil {
		return 0, err
	}
	amount := p.FeeRate + p.ClaimBonus
	p.position(vault).Fees += amount
	return amount, nil
}
