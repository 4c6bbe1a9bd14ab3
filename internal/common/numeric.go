package common

import (
	"math"
	"strconv"
	"strings"
)

// ParseNonNegative converts free-form numeric input into a non-negative
// float. Empty strings, unparseable values, NaN, infinities, and negative
// numbers all coerce to 0. Every quantity/markup input field goes through
// this single point so the leniency policy stays uniform.
func ParseNonNegative(value string) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0
	}
	return ClampNonNegative(f)
}

// ClampNonNegative applies the same coercion to values that arrive already
// decoded (JSON numbers).
func ClampNonNegative(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}

// RoundMoney rounds to the nearest integer currency unit. Used only at the
// document boundary; stored values keep full precision.
func RoundMoney(f float64) float64 {
	return math.Round(f)
}
