package calculator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"DynamicVault/internal/model"
)

func TestDriftPercent(t *testing.T) {
	d, err := DriftPercent(100, 110)
	require.NoError(t, err)
	require.InDelta(t, 10.0, d, 1e-9)

	d, err = DriftPercent(100, 90)
	require.NoError(t, err)
	require.InDelta(t, 10.0, d, 1e-9)

	_, err = DriftPercent(0, 110)
	require.ErrorIs(t, err, ErrUndefinedDrift)
	_, err = DriftPercent(-5, 110)
	require.ErrorIs(t, err, ErrUndefinedDrift)
}

func TestRoundHalfAway(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{2.5, 3},
		{-2.5, -3},
		{2.4999, 2},
		{0.5, 1},
		{-0.5, -1},
		{99.75, 100},
		{110.25, 110},
		{0.49999999999999994, 0},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, RoundHalfAway(tt.in), "round(%v)", tt.in)
	}
}

func TestSaturateInt32(t *testing.T) {
	require.Equal(t, int32(math.MaxInt32), SaturateInt32(1e12))
	require.Equal(t, int32(math.MinInt32), SaturateInt32(-1e12))
	require.Equal(t, int32(0), SaturateInt32(math.NaN()))
	require.Equal(t, int32(42), SaturateInt32(42))
}

func TestCandidateBins_DriftScenario(t *testing.T) {
	// mid = 105, spread = 0.05 -> [99.75, 110.25] -> [100, 110]
	require.Equal(t, model.Bins{100, 110}, CandidateBins(100, 110, 5))
}

// Ranges are well formed once the half-width spans at least one tick.
func TestCandidateBins_OrderedWhenSpreadSpansATick(t *testing.T) {
	prices := [][2]float64{{100, 110}, {250, 180}, {1000, 1500}, {42.5, 60}}
	for threshold := uint8(1); threshold <= 99; threshold++ {
		for _, p := range prices {
			b := CandidateBins(p[0], p[1], threshold)
			require.True(t, b.Valid(), "threshold=%d prices=%v bins=%v", threshold, p, b)
		}
	}
}

func TestCandidateBins_LowPricesDegenerate(t *testing.T) {
	cases := []struct {
		last, next float64
		threshold  uint8
		want       model.Bins
	}{
		{1.0, 1.2, 5, model.Bins{1, 1}},
		{0.4, 0.6, 5, model.Bins{0, 1}},
		{0.01, 0.02, 50, model.Bins{0, 0}},
	}
	for _, tc := range cases {
		got := CandidateBins(tc.last, tc.next, tc.threshold)
		require.Equal(t, tc.want, got)
		require.False(t, got.Valid(), "%v", got)
	}
}

func TestProportionalLiquidity(t *testing.T) {
	require.Equal(t, uint64(500), ProportionalLiquidity(1000, 50))
	require.Equal(t, uint64(49), ProportionalLiquidity(99, 50))
	require.Equal(t, uint64(1000), ProportionalLiquidity(1000, 100))
	require.Equal(t, uint64(0), ProportionalLiquidity(1, 1))
	// liquidity * share overflows 64 bits before the division
	require.Equal(t, uint64(math.MaxUint64/2), ProportionalLiquidity(math.MaxUint64, 50))
}
