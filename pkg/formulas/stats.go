// Package formulas holds the numeric building blocks used by feature extraction.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// PopStdDev calculates the population standard deviation (ddof=0).
func PopStdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.PopStdDev(data, nil)
}

// Min returns the smallest value, or 0 for an empty slice.
func Min(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return floats.Min(data)
}

// Max returns the largest value, or 0 for an empty slice.
func Max(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return floats.Max(data)
}

// PercentChange returns (last-first)/first*100 over a window.
// Windows with fewer than two points or a non-positive base report 0.
func PercentChange(window []float64) float64 {
	if len(window) < 2 {
		return 0
	}
	first := window[0]
	if first <= 0 {
		return 0
	}
	return (window[len(window)-1] - first) / first * 100
}

// CoefficientOfVariation returns std/mean, 0 when the mean is not positive.
func CoefficientOfVariation(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	mean, std := stat.PopMeanStdDev(data, nil)
	if mean <= 0 || math.IsNaN(std) {
		return 0
	}
	return std / mean
}

// Clamp bounds v to [lo, hi]. NaN collapses to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
