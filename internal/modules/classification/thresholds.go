// Package classification scores trade opportunities into signals, risk levels
// and position sizes.
package classification

import (
	"github.com/aristath/skinsentinel/internal/domain"
)

// Tolerance multipliers applied to the moderate profit thresholds.
const (
	ConservativeBuyMultiplier  = 1.5
	ConservativeSellMultiplier = 0.8
	AggressiveBuyMultiplier    = 0.7
	AggressiveSellMultiplier   = 1.2

	// maxPositionBase is divided by the balance factor to get the position cap in percent.
	maxPositionBase = 30.0
)

// Thresholds drive signal selection for one risk tolerance.
type Thresholds struct {
	StrongBuyProfit  float64 `json:"strong_buy_profit"`
	BuyProfit        float64 `json:"buy_profit"`
	SellProfit       float64 `json:"sell_profit"`
	StrongSellProfit float64 `json:"strong_sell_profit"`
	MaxRiskScore     float64 `json:"max_risk_score"`
	MinLiquidity     float64 `json:"min_liquidity"`
}

var baseThresholds = Thresholds{
	StrongBuyProfit:  10,
	BuyProfit:        5,
	SellProfit:       -5,
	StrongSellProfit: -10,
	MaxRiskScore:     0.6,
	MinLiquidity:     0.3,
}

// thresholdTable is derived once and never mutated.
var thresholdTable = map[domain.RiskTolerance]Thresholds{
	domain.ToleranceModerate: baseThresholds,
	domain.ToleranceConservative: {
		StrongBuyProfit:  baseThresholds.StrongBuyProfit * ConservativeBuyMultiplier,
		BuyProfit:        baseThresholds.BuyProfit * ConservativeBuyMultiplier,
		SellProfit:       baseThresholds.SellProfit * ConservativeSellMultiplier,
		StrongSellProfit: baseThresholds.StrongSellProfit * ConservativeSellMultiplier,
		MaxRiskScore:     0.4,
		MinLiquidity:     0.5,
	},
	domain.ToleranceAggressive: {
		StrongBuyProfit:  baseThresholds.StrongBuyProfit * AggressiveBuyMultiplier,
		BuyProfit:        baseThresholds.BuyProfit * AggressiveBuyMultiplier,
		SellProfit:       baseThresholds.SellProfit * AggressiveSellMultiplier,
		StrongSellProfit: baseThresholds.StrongSellProfit * AggressiveSellMultiplier,
		MaxRiskScore:     0.75,
		MinLiquidity:     0.2,
	},
}

// ThresholdsFor returns a copy of the table entry for a tolerance.
// Unknown tolerances get the moderate table.
func ThresholdsFor(tol domain.RiskTolerance) Thresholds {
	if t, ok := thresholdTable[tol]; ok {
		return t
	}
	return baseThresholds
}

// MaxPositionPercent is the largest position, in percent of balance, allowed for a balance.
func MaxPositionPercent(balance float64) float64 {
	return maxPositionBase / domain.BalanceFactor(balance)
}
