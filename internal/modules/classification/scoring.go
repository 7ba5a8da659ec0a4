package classification

import (
	"math"

	"github.com/aristath/skinsentinel/internal/domain"
	"github.com/aristath/skinsentinel/internal/modules/features"
	"github.com/aristath/skinsentinel/pkg/formulas"
)

// RiskInput carries what the risk components look at.
type RiskInput struct {
	Features       features.PriceFeatures
	ExpectedProfit float64
	Balance        float64
}

// RiskComponent contributes a non-negative amount to the risk score.
type RiskComponent func(in RiskInput) float64

// RiskComponents are summed and capped at 1.
var RiskComponents = []RiskComponent{
	VolatilityRisk,
	LiquidityRisk,
	TrendRisk,
	RSIRisk,
	DataQualityRisk,
	ExposureRisk,
}

// VolatilityRisk is volatility × 1.5, capped at 0.3.
func VolatilityRisk(in RiskInput) float64 {
	return math.Min(math.Max(in.Features.Volatility, 0)*1.5, 0.3)
}

// LiquidityRisk penalizes items that rarely trade.
func LiquidityRisk(in RiskInput) float64 {
	switch {
	case in.Features.Sales24h < 3:
		return 0.25
	case in.Features.Sales24h < 10:
		return 0.15
	default:
		return 0
	}
}

// TrendRisk penalizes unstable trends and buying into a falling market.
func TrendRisk(in RiskInput) float64 {
	switch {
	case in.Features.Trend == domain.TrendVolatile:
		return 0.15
	case in.Features.Trend == domain.TrendDown && in.ExpectedProfit > 0:
		return 0.1
	default:
		return 0
	}
}

// RSIRisk penalizes betting against an overextended RSI.
func RSIRisk(in RiskInput) float64 {
	rsi := in.Features.RSI
	if (rsi > 80 && in.ExpectedProfit > 0) || (rsi < 20 && in.ExpectedProfit < 0) {
		return 0.1
	}
	return 0
}

// DataQualityRisk scales with missing market data.
func DataQualityRisk(in RiskInput) float64 {
	return (1 - formulas.Clamp(in.Features.DataQualityScore, 0, 1)) * 0.15
}

// ExposureRisk penalizes items that take a large share of the balance.
func ExposureRisk(in RiskInput) float64 {
	price := in.Features.CurrentPrice
	switch {
	case price > 0.5*in.Balance:
		return 0.15
	case price > 0.3*in.Balance:
		return 0.08
	default:
		return 0
	}
}

// RiskScore sums the components and clamps to [0,1].
func RiskScore(in RiskInput) float64 {
	score := 0.0
	for _, component := range RiskComponents {
		score += component(in)
	}
	return formulas.Clamp(score, 0, 1)
}

// LiquidityScore mixes sales velocity (70%) and order book depth (30%).
func LiquidityScore(f features.PriceFeatures) float64 {
	var salesTier float64
	switch {
	case f.AvgSalesPerDay >= 10:
		salesTier = 1.0
	case f.AvgSalesPerDay >= 5:
		salesTier = 0.8
	case f.AvgSalesPerDay >= 2:
		salesTier = 0.6
	case f.AvgSalesPerDay >= 1:
		salesTier = 0.4
	default:
		salesTier = 0.2
	}
	depth := math.Min(math.Max(f.MarketDepth, 0)/50, 1)
	return formulas.Clamp(0.7*salesTier+0.3*depth, 0, 1)
}

// MaxLossPercent estimates the worst-case loss including the 7% commission, capped at 50.
func MaxLossPercent(f features.PriceFeatures) float64 {
	trendRisk := 0.0
	switch f.Trend {
	case domain.TrendDown:
		trendRisk = 5
	case domain.TrendVolatile:
		trendRisk = 3
	}
	return math.Min(math.Max(f.Volatility, 0)*300+7+trendRisk, 50)
}

// ProfitProbability estimates the chance the expected move is realized, in [0.1,0.9].
func ProfitProbability(f features.PriceFeatures, expectedProfit float64) float64 {
	p := 0.5 + math.Copysign(math.Min(math.Abs(expectedProfit)*0.02, 0.25), expectedProfit)
	if expectedProfit == 0 {
		p = 0.5
	}

	switch f.Trend {
	case domain.TrendUp:
		p += 0.1
	case domain.TrendDown:
		p -= 0.1
	}

	switch {
	case f.RSI >= 40 && f.RSI <= 60:
		p += 0.05
	case f.RSI > 70 || f.RSI < 30:
		p -= 0.05
	}

	switch {
	case f.Sales24h >= 10:
		p += 0.05
	case f.Sales24h < 3:
		p -= 0.1
	}

	return formulas.Clamp(p, 0.1, 0.9)
}
