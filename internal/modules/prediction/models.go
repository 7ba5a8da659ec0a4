// Package prediction forecasts item prices over several horizons, scores the
// forecast's confidence and turns it into a recommendation.
package prediction

import (
	"time"

	"github.com/aristath/skinsentinel/internal/domain"
)

// Horizons in hours, in forecast order.
var Horizons = []float64{1, 24, 168}

// PriceRange is a ±1σ band around a point forecast.
type PriceRange struct {
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Sigma float64 `json:"sigma"`
}

// PricePrediction is one forecast for one item. Never mutated after creation.
type PricePrediction struct {
	ID              string                 `json:"id"`
	ItemName        string                 `json:"item_name"`
	CurrentPrice    float64                `json:"current_price"`
	Predicted1h     float64                `json:"predicted_price_1h"`
	Predicted24h    float64                `json:"predicted_price_24h"`
	Predicted7d     float64                `json:"predicted_price_7d"`
	Range1h         PriceRange             `json:"range_1h"`
	Range24h        PriceRange             `json:"range_24h"`
	Range7d         PriceRange             `json:"range_7d"`
	Confidence      domain.ConfidenceLevel `json:"confidence"`
	ConfidenceScore float64                `json:"confidence_score"`
	Recommendation  domain.Signal          `json:"recommendation"`
	Reasoning       string                 `json:"reasoning"`
	ModelVersion    string                 `json:"model_version"`
	Timestamp       time.Time              `json:"timestamp"`
}

// ChangePercent24h is the forecast 24h move relative to the current price.
func (p PricePrediction) ChangePercent24h() float64 {
	if p.CurrentPrice <= 0 {
		return 0
	}
	return (p.Predicted24h - p.CurrentPrice) / p.CurrentPrice * 100
}
