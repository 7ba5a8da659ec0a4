package formulas

import (
	"github.com/markcheno/go-talib"
)

const (
	// DefaultRSIPeriod is the classic 14-period lookback.
	DefaultRSIPeriod = 14
	// NeutralRSI is reported whenever there is not enough data.
	NeutralRSI = 50.0
)

// CalculateRSI calculates the Relative Strength Index over the last `period`
// price deltas using simple averages:
//
//	RSI = 100 - 100/(1 + avgGain/avgLoss)
//
// With no losses the RSI is 100 if there were gains, otherwise neutral.
// Fewer than `period` prices yields NeutralRSI.
func CalculateRSI(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period {
		return NeutralRSI
	}

	deltas := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		deltas = append(deltas, prices[i]-prices[i-1])
	}
	if len(deltas) > period {
		deltas = deltas[len(deltas)-period:]
	}

	gains := make([]float64, len(deltas))
	losses := make([]float64, len(deltas))
	for i, d := range deltas {
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}

	avgGain := Mean(gains)
	avgLoss := Mean(losses)

	if avgLoss == 0 {
		if avgGain > 0 {
			return 100
		}
		return NeutralRSI
	}

	rs := avgGain / avgLoss
	return Clamp(100-100/(1+rs), 0, 100)
}

// CalculateMomentum returns the rate of change in percent between the last
// price and the price `lookback` points earlier, with lookback capped at
// min(lookback, len-1). Fewer than two prices or a zero base yields 0.
func CalculateMomentum(prices []float64, lookback int) float64 {
	if len(prices) < 2 || lookback <= 0 {
		return 0
	}
	k := lookback
	if k > len(prices)-1 {
		k = len(prices) - 1
	}

	roc := talib.Roc(prices, k)
	last := roc[len(roc)-1]
	if isNaN(last) {
		return 0
	}
	return last
}

// isNaN checks if a float64 is NaN
func isNaN(f float64) bool {
	return f != f
}
