// Package domain provides the shared enums used across the engine modules.
package domain

// Signal is a discrete trade signal. Predictions use the five directional
// values as recommendations; classifications may also emit SignalSkip.
type Signal string

const (
	SignalStrongBuy  Signal = "strong_buy"
	SignalBuy        Signal = "buy"
	SignalHold       Signal = "hold"
	SignalSell       Signal = "sell"
	SignalStrongSell Signal = "strong_sell"
	SignalSkip       Signal = "skip"
)

// AllSignals lists every signal in probability-vector order.
var AllSignals = []Signal{
	SignalStrongBuy,
	SignalBuy,
	SignalHold,
	SignalSell,
	SignalStrongSell,
	SignalSkip,
}

// IsBuy reports whether the signal opens a position.
func (s Signal) IsBuy() bool {
	return s == SignalStrongBuy || s == SignalBuy
}

// IsSell reports whether the signal is on the sell side.
func (s Signal) IsSell() bool {
	return s == SignalSell || s == SignalStrongSell
}

// Trend is the coarse price-direction category of an item.
type Trend string

const (
	TrendUp       Trend = "UP"
	TrendDown     Trend = "DOWN"
	TrendStable   Trend = "STABLE"
	TrendVolatile Trend = "VOLATILE"
)

// Code returns the numeric encoding used in feature vectors.
func (t Trend) Code() float64 {
	switch t {
	case TrendUp:
		return 1
	case TrendDown:
		return -1
	case TrendVolatile:
		return 2
	default:
		return 0
	}
}

// TrendFromCode is the inverse of Trend.Code. Unknown codes map to STABLE.
func TrendFromCode(code float64) Trend {
	switch code {
	case 1:
		return TrendUp
	case -1:
		return TrendDown
	case 2:
		return TrendVolatile
	default:
		return TrendStable
	}
}

// RiskLevel is the bucketed form of a [0,1] risk score.
type RiskLevel string

const (
	RiskVeryLow  RiskLevel = "very_low"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskVeryHigh RiskLevel = "very_high"
)

// RiskLevelFor buckets a risk score in steps of 0.2.
func RiskLevelFor(score float64) RiskLevel {
	switch {
	case score < 0.2:
		return RiskVeryLow
	case score < 0.4:
		return RiskLow
	case score < 0.6:
		return RiskMedium
	case score < 0.8:
		return RiskHigh
	default:
		return RiskVeryHigh
	}
}

// ConfidenceLevel is the bucketed form of a [0,1] confidence score.
type ConfidenceLevel string

const (
	ConfidenceVeryHigh ConfidenceLevel = "VERY_HIGH"
	ConfidenceHigh     ConfidenceLevel = "HIGH"
	ConfidenceMedium   ConfidenceLevel = "MEDIUM"
	ConfidenceLow      ConfidenceLevel = "LOW"
	ConfidenceVeryLow  ConfidenceLevel = "VERY_LOW"
)

// ConfidenceLevelFor maps a score to its category (85/70/50/30 percent cut-offs).
func ConfidenceLevelFor(score float64) ConfidenceLevel {
	switch {
	case score >= 0.85:
		return ConfidenceVeryHigh
	case score >= 0.70:
		return ConfidenceHigh
	case score >= 0.50:
		return ConfidenceMedium
	case score >= 0.30:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}

// RiskTolerance selects the classifier threshold table.
type RiskTolerance string

const (
	ToleranceConservative RiskTolerance = "conservative"
	ToleranceModerate     RiskTolerance = "moderate"
	ToleranceAggressive   RiskTolerance = "aggressive"
)

// ParseRiskTolerance validates a tolerance name.
func ParseRiskTolerance(s string) (RiskTolerance, bool) {
	switch RiskTolerance(s) {
	case ToleranceConservative, ToleranceModerate, ToleranceAggressive:
		return RiskTolerance(s), true
	default:
		return "", false
	}
}

// BalanceFactor scales signal thresholds by wallet size: small balances need
// larger moves to justify a trade.
func BalanceFactor(balance float64) float64 {
	switch {
	case balance < 50:
		return 1.5
	case balance < 100:
		return 1.3
	case balance < 300:
		return 1.0
	case balance < 500:
		return 0.9
	default:
		return 0.8
	}
}
