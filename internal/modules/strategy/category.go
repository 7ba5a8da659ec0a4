// Package strategy maps a wallet balance to a category-specific trading policy.
package strategy

import "time"

// BalanceCategory is the wallet size tier.
type BalanceCategory string

const (
	CategoryMicro  BalanceCategory = "MICRO"
	CategorySmall  BalanceCategory = "SMALL"
	CategoryMedium BalanceCategory = "MEDIUM"
	CategoryLarge  BalanceCategory = "LARGE"
	CategoryWhale  BalanceCategory = "WHALE"
)

// Mode is the overall posture of a category.
type Mode string

const (
	ModeGrowth       Mode = "GROWTH"
	ModeBalanced     Mode = "BALANCED"
	ModePreservation Mode = "PRESERVATION"
)

// Category boundaries in USD; each tier is [lower, next lower).
const (
	SmallBalanceMin  = 20.0
	MediumBalanceMin = 100.0
	LargeBalanceMin  = 500.0
	WhaleBalanceMin  = 2000.0
)

// Parameters is the policy tuple owned by a category.
type Parameters struct {
	MaxPositionPercent     float64       `json:"max_position_percent"`
	MinProfitPercent       float64       `json:"min_profit_percent"`
	MaxRiskTolerance       float64       `json:"max_risk_tolerance"`
	MaxConcurrentPositions int           `json:"max_concurrent_positions"`
	ScanIntervalSeconds    int           `json:"scan_interval_seconds"`
	HoldTimeHint           time.Duration `json:"hold_time_hint"`
	Mode                   Mode          `json:"mode"`
}

// parameterTable is never mutated; lookups return copies.
var parameterTable = map[BalanceCategory]Parameters{
	CategoryMicro: {
		MaxPositionPercent:     50,
		MinProfitPercent:       10,
		MaxRiskTolerance:       0.40,
		MaxConcurrentPositions: 2,
		ScanIntervalSeconds:    60,
		HoldTimeHint:           24 * time.Hour,
		Mode:                   ModeGrowth,
	},
	CategorySmall: {
		MaxPositionPercent:     30,
		MinProfitPercent:       7,
		MaxRiskTolerance:       0.50,
		MaxConcurrentPositions: 3,
		ScanIntervalSeconds:    120,
		HoldTimeHint:           48 * time.Hour,
		Mode:                   ModeGrowth,
	},
	CategoryMedium: {
		MaxPositionPercent:     20,
		MinProfitPercent:       5,
		MaxRiskTolerance:       0.60,
		MaxConcurrentPositions: 5,
		ScanIntervalSeconds:    300,
		HoldTimeHint:           72 * time.Hour,
		Mode:                   ModeBalanced,
	},
	CategoryLarge: {
		MaxPositionPercent:     15,
		MinProfitPercent:       4,
		MaxRiskTolerance:       0.50,
		MaxConcurrentPositions: 8,
		ScanIntervalSeconds:    600,
		HoldTimeHint:           168 * time.Hour,
		Mode:                   ModeBalanced,
	},
	CategoryWhale: {
		MaxPositionPercent:     10,
		MinProfitPercent:       3,
		MaxRiskTolerance:       0.40,
		MaxConcurrentPositions: 12,
		ScanIntervalSeconds:    900,
		HoldTimeHint:           336 * time.Hour,
		Mode:                   ModePreservation,
	},
}

// CategoryFor maps a balance to its tier. Negative balances are MICRO.
func CategoryFor(balance float64) BalanceCategory {
	switch {
	case balance >= WhaleBalanceMin:
		return CategoryWhale
	case balance >= LargeBalanceMin:
		return CategoryLarge
	case balance >= MediumBalanceMin:
		return CategoryMedium
	case balance >= SmallBalanceMin:
		return CategorySmall
	default:
		return CategoryMicro
	}
}

// ParametersFor returns a copy of a category's policy.
func ParametersFor(c BalanceCategory) Parameters {
	return parameterTable[c]
}
