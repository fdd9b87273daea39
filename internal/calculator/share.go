package calculator

import "github.com/holiman/uint256"

// ProportionalLiquidity returns floor(liquidity * share / 100). The remainder is dropped.
func ProportionalLiquidity(liquidity, share uint64) uint64 {
	v := new(uint256.Int).Mul(uint256.NewInt(liquidity), uint256.NewInt(share))
	v.Div(v, uint256.NewInt(100))
	if !v.IsUint64() {
		return liquidity
	}
	return v.Uint64()
}
