package prediction

import (
	"github.com/aristath/skinsentinel/internal/domain"
	"github.com/aristath/skinsentinel/pkg/formulas"
)

// ConfidenceInput carries what the confidence chain looks at.
type ConfidenceInput struct {
	Volatility    float64
	DataQuality   float64
	RelativeSigma float64 // σ(24h) / current price
	Sales24h      float64
}

// ConfidenceAdjustment scales a running confidence score.
type ConfidenceAdjustment func(score float64, in ConfidenceInput) float64

// ConfidenceChain is applied in order starting from 1.0.
var ConfidenceChain = []ConfidenceAdjustment{
	AdjustForVolatility,
	AdjustForDataQuality,
	AdjustForUncertainty,
	AdjustForLiquidity,
}

// AdjustForVolatility penalizes unstable price windows.
func AdjustForVolatility(score float64, in ConfidenceInput) float64 {
	switch {
	case in.Volatility > 0.2:
		return score * 0.6
	case in.Volatility > 0.1:
		return score * 0.8
	default:
		return score
	}
}

// AdjustForDataQuality scales by the extractor's data quality score.
func AdjustForDataQuality(score float64, in ConfidenceInput) float64 {
	return score * in.DataQuality
}

// AdjustForUncertainty penalizes wide forecast bands.
func AdjustForUncertainty(score float64, in ConfidenceInput) float64 {
	switch {
	case in.RelativeSigma > 0.2:
		return score * 0.5
	case in.RelativeSigma > 0.1:
		return score * 0.7
	default:
		return score
	}
}

// AdjustForLiquidity rewards active markets and penalizes thin ones.
func AdjustForLiquidity(score float64, in ConfidenceInput) float64 {
	switch {
	case in.Sales24h > 10:
		return score * 1.1
	case in.Sales24h < 2:
		return score * 0.8
	default:
		return score
	}
}

// ConfidenceScore runs the chain and clamps the result to [0,1].
func ConfidenceScore(in ConfidenceInput) float64 {
	score := 1.0
	for _, adjust := range ConfidenceChain {
		score = adjust(score, in)
	}
	return formulas.Clamp(score, 0, 1)
}

// Confidence returns the clamped score and its category.
func Confidence(in ConfidenceInput) (float64, domain.ConfidenceLevel) {
	score := ConfidenceScore(in)
	return score, domain.ConfidenceLevelFor(score)
}
