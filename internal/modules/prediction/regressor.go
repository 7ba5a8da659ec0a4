package prediction

import (
	"math"

	"github.com/aristath/skinsentinel/internal/modules/features"
)

const (
	// ModelVersion tags bundles and predictions made by the trained ensemble.
	ModelVersion = "gbrt-ridge-v1"
	// FallbackVersion tags predictions made without a trained model.
	FallbackVersion = "statistical-v1"

	nonlinearWeight = 0.7
	linearWeight    = 0.3
	longSigmaScale  = 1.2
)

// Regressor produces a point forecast and its standard deviation for a horizon.
type Regressor interface {
	Predict(f features.PriceFeatures, horizonHours float64) (value, sigma float64)
}

// Ensemble blends a gradient-boosted model with a ridge model. The spread
// between the two members stands in for σ.
type Ensemble struct {
	GBRT  *GradientBoosting
	Ridge *Ridge
}

// Predict implements Regressor.
func (e *Ensemble) Predict(f features.PriceFeatures, horizonHours float64) (float64, float64) {
	x := f.Vector()
	a := e.GBRT.PredictVector(x)
	b := e.Ridge.PredictVector(x)

	scale := 1.0
	if horizonHours > 24 {
		scale = longSigmaScale
	}
	return nonlinearWeight*a + linearWeight*b, math.Abs(a-b) * scale
}

// StatisticalFallback extrapolates the 24h trend with RSI and momentum corrections.
type StatisticalFallback struct{}

// Predict implements Regressor.
func (StatisticalFallback) Predict(f features.PriceFeatures, horizonHours float64) (float64, float64) {
	trendFactor := 1 + (f.PriceChange24h/24*horizonHours)/100

	rsiFactor := 1.0
	switch {
	case f.RSI > 70:
		rsiFactor = 0.98
	case f.RSI < 30:
		rsiFactor = 1.02
	}

	momentumFactor := 1 + f.Momentum*0.001

	value := f.CurrentPrice * trendFactor * rsiFactor * momentumFactor
	sigma := f.CurrentPrice * math.Max(f.Volatility, 0.02) * (1 + horizonHours/24*0.5)
	return value, sigma
}
