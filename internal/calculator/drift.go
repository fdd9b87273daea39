package calculator

import (
	"errors"
	"math"

	"DynamicVault/internal/model"
)

// ErrUndefinedDrift is returned when the reference price cannot anchor a drift percentage.
var ErrUndefinedDrift = errors.New("drift undefined for non-positive reference price")

// DriftPercent returns |next - last| / last * 100.
func DriftPercent(last, next float64) (float64, error) {
	if !(last > 0) || math.IsInf(last, 0) {
		return 0, ErrUndefinedDrift
	}
	return math.Abs(next-last) / last * 100, nil
}

// RoundHalfAway rounds x to the nearest integer, with ties going away from zero.
func RoundHalfAway(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	t := math.Trunc(x)
	if math.Abs(x-t) >= 0.5 {
		t += math.Copysign(1, x)
	}
	return t
}

// SaturateInt32 converts f to int32, clamping out-of-range values and mapping NaN to zero.
func SaturateInt32(f float64) int32 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int32(f)
}

// CandidateBins centers a new range on the midpoint of the two prices, with
// a half-width of threshold percent on each side.
func CandidateBins(last, next float64, threshold uint8) model.Bins {
	mid := (last + next) / 2
	spread := float64(threshold) / 100
	return model.Bins{
		SaturateInt32(RoundHalfAway(mid * (1 - spread))),
		SaturateInt32(RoundHalfAway(mid * (1 + spread))),
	}
}
