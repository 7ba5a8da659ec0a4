package utils

import (
	"math"

	"github.com/shopspring/decimal"
)

// CentsToUSD converts an integer cent amount (as quoted by marketplaces) to dollars.
func CentsToUSD(cents int64) float64 {
	return decimal.New(cents, -2).InexactFloat64()
}

// RoundUSD rounds a dollar amount to whole cents, half away from zero.
func RoundUSD(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// PriceKey renders a price with exactly two decimals for use in cache keys.
func PriceKey(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0.00"
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// FloorUSD truncates a dollar amount to whole cents, never rounding up.
func FloorUSD(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Truncate(2).InexactFloat64()
}
