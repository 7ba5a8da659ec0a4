package strategy

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
)

// Market adaptation factors.
const (
	highVolatilityThreshold    = 0.2
	volatileProfitMultiplier   = 1.5
	volatileRiskMultiplier     = 0.7
	volatilePositionReduction  = 2
	saleProfitMultiplier       = 1.3
	salePositionMultiplier     = 0.7
	tournamentRiskMultiplier   = 1.2
	tournamentProfitMultiplier = 0.8
)

// Recommendation summarizes the active policy for display.
type Recommendation struct {
	Balance        float64         `json:"balance"`
	Category       BalanceCategory `json:"category"`
	Mode           Mode            `json:"mode"`
	Parameters     Parameters      `json:"parameters"`
	MaxPositionUSD float64         `json:"max_position_usd"`
	Notes          []string        `json:"notes"`
}

// BalanceAdaptiveStrategy holds the balance and the policy derived from it.
type BalanceAdaptiveStrategy struct {
	log      zerolog.Logger
	balance  float64
	category BalanceCategory
	params   Parameters
}

// New creates a strategy for the given balance.
func New(balance float64, log zerolog.Logger) *BalanceAdaptiveStrategy {
	s := &BalanceAdaptiveStrategy{
		log: log.With().Str("component", "balance_strategy").Logger(),
	}
	s.SetBalance(balance)
	return s
}

// SetBalance updates the balance and re-derives the category.
func (s *BalanceAdaptiveStrategy) SetBalance(balance float64) {
	previous := s.category
	s.balance = balance
	s.category = CategoryFor(balance)
	s.params = ParametersFor(s.category)

	if previous != "" && previous != s.category {
		s.log.Info().
			Str("from", string(previous)).
			Str("to", string(s.category)).
			Float64("balance", balance).
			Msg("Balance category changed")
	}
}

// Balance returns the current balance.
func (s *BalanceAdaptiveStrategy) Balance() float64 {
	return s.balance
}

// Category returns the current balance category.
func (s *BalanceAdaptiveStrategy) Category() BalanceCategory {
	return s.category
}

// Parameters returns a copy of the active policy.
func (s *BalanceAdaptiveStrategy) Parameters() Parameters {
	return s.params
}

// MaxPositionUSD is the largest single position the policy allows.
func (s *BalanceAdaptiveStrategy) MaxPositionUSD() float64 {
	return s.balance * s.params.MaxPositionPercent / 100
}

// ShouldBuy runs the ordered purchase checks and returns the first failure.
func (s *BalanceAdaptiveStrategy) ShouldBuy(price, profitPercent, riskScore float64, currentPositions int) (bool, string) {
	maxPosition := s.MaxPositionUSD()

	if price > maxPosition {
		return false, fmt.Sprintf("Price $%.2f exceeds max position $%.2f", price, maxPosition)
	}
	if price > s.balance {
		return false, fmt.Sprintf("Price $%.2f exceeds balance $%.2f", price, s.balance)
	}
	if profitPercent < s.params.MinProfitPercent {
		return false, fmt.Sprintf("Profit %.2f%% below minimum %.2f%%", profitPercent, s.params.MinProfitPercent)
	}
	if riskScore > s.params.MaxRiskTolerance {
		return false, fmt.Sprintf("Risk %.2f exceeds tolerance %.2f", riskScore, s.params.MaxRiskTolerance)
	}
	if currentPositions >= s.params.MaxConcurrentPositions {
		return false, fmt.Sprintf("Max concurrent positions reached (%d)", s.params.MaxConcurrentPositions)
	}
	return true, "OK"
}

// CalculatePositionSize scales the max position by confidence and risk,
// capped by the item price and the balance.
func (s *BalanceAdaptiveStrategy) CalculatePositionSize(price, confidence, riskScore float64) float64 {
	size := s.MaxPositionUSD() * (0.5 + 0.5*confidence) * (1 - 0.5*riskScore)
	size = math.Min(size, price)
	size = math.Min(size, s.balance)
	return math.Max(size, 0)
}

// AdaptToMarketConditions derives a parameter set for current conditions.
// The category table is never modified.
func (s *BalanceAdaptiveStrategy) AdaptToMarketConditions(volatility float64, isSalePeriod, isTournament bool) Parameters {
	p := s.params

	if volatility > highVolatilityThreshold {
		p.MinProfitPercent *= volatileProfitMultiplier
		p.MaxRiskTolerance *= volatileRiskMultiplier
		p.MaxConcurrentPositions = max(p.MaxConcurrentPositions-volatilePositionReduction, 1)
	}
	if isSalePeriod {
		p.MinProfitPercent *= saleProfitMultiplier
		p.MaxPositionPercent *= salePositionMultiplier
	}
	if isTournament {
		p.MaxRiskTolerance *= tournamentRiskMultiplier
		p.MinProfitPercent *= tournamentProfitMultiplier
	}
	return p
}

// Recommendation describes the active policy.
func (s *BalanceAdaptiveStrategy) Recommendation() Recommendation {
	p := s.params
	notes := []string{
		fmt.Sprintf("%s balance: keep single positions under $%.2f (%.0f%%)", s.category, s.MaxPositionUSD(), p.MaxPositionPercent),
		fmt.Sprintf("Only buy with at least %.1f%% expected profit and risk up to %.2f", p.MinProfitPercent, p.MaxRiskTolerance),
		fmt.Sprintf("Hold up to %d positions; rescan every %ds; typical hold %s", p.MaxConcurrentPositions, p.ScanIntervalSeconds, p.HoldTimeHint),
	}
	switch p.Mode {
	case ModeGrowth:
		notes = append(notes, "Growth mode: favour fast flips to build capital")
	case ModeBalanced:
		notes = append(notes, "Balanced mode: mix quick trades with longer holds")
	case ModePreservation:
		notes = append(notes, "Preservation mode: spread capital and avoid drawdowns")
	}

	return Recommendation{
		Balance:        s.balance,
		Category:       s.category,
		Mode:           p.Mode,
		Parameters:     p,
		MaxPositionUSD: s.MaxPositionUSD(),
		Notes:          notes,
	}
}
