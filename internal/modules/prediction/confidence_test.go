package prediction

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/skinsentinel/internal/domain"
)

func TestConfidenceAdjustments(t *testing.T) {
	tests := []struct {
		name     string
		adjust   ConfidenceAdjustment
		in       ConfidenceInput
		expected float64
	}{
		{"calm market", AdjustForVolatility, ConfidenceInput{Volatility: 0.05}, 1},
		{"moderate volatility", AdjustForVolatility, ConfidenceInput{Volatility: 0.15}, 0.8},
		{"boundary volatility", AdjustForVolatility, ConfidenceInput{Volatility: 0.2}, 0.8},
		{"high volatility", AdjustForVolatility, ConfidenceInput{Volatility: 0.25}, 0.6},
		{"data quality", AdjustForDataQuality, ConfidenceInput{DataQuality: 0.28}, 0.28},
		{"tight band", AdjustForUncertainty, ConfidenceInput{RelativeSigma: 0.05}, 1},
		{"wide band", AdjustForUncertainty, ConfidenceInput{RelativeSigma: 0.15}, 0.7},
		{"very wide band", AdjustForUncertainty, ConfidenceInput{RelativeSigma: 0.3}, 0.5},
		{"liquid", AdjustForLiquidity, ConfidenceInput{Sales24h: 11}, 1.1},
		{"normal liquidity", AdjustForLiquidity, ConfidenceInput{Sales24h: 5}, 1},
		{"illiquid", AdjustForLiquidity, ConfidenceInput{Sales24h: 1}, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, tt.adjust(1, tt.in), 1e-9)
		})
	}
}

func TestConfidenceScore_Clamped(t *testing.T) {
	score, level := Confidence(ConfidenceInput{DataQuality: 1, Sales24h: 50})
	assert.Equal(t, 1.0, score, "liquidity bonus cannot push past 1")
	assert.Equal(t, domain.ConfidenceVeryHigh, level)

	score, level = Confidence(ConfidenceInput{Volatility: 0.3, DataQuality: 0.28, RelativeSigma: 0.5, Sales24h: 0})
	assert.InDelta(t, 0.6*0.28*0.5*0.8, score, 1e-9)
	assert.Equal(t, domain.ConfidenceVeryLow, level)

	score, _ = Confidence(ConfidenceInput{DataQuality: -3})
	assert.Equal(t, 0.0, score)
}

func TestRecommend(t *testing.T) {
	tests := []struct {
		name       string
		change     float64
		confidence float64
		price      float64
		balance    float64
		expected   domain.Signal
	}{
		{"strong buy", 10, 0.7, 10, 200, domain.SignalStrongBuy},
		{"strong buy unaffordable", 10, 0.7, 100, 200, domain.SignalBuy},
		{"strong move low confidence", 10, 0.55, 10, 200, domain.SignalBuy},
		{"buy", 6, 0.55, 10, 200, domain.SignalBuy},
		{"buy unaffordable", 6, 0.55, 100, 200, domain.SignalHold},
		{"buy needs confidence", 6, 0.4, 10, 200, domain.SignalHold},
		{"strong sell", -9, 0.7, 10, 200, domain.SignalStrongSell},
		{"sell", -6, 0.55, 10, 200, domain.SignalSell},
		{"sell needs confidence", -9, 0.45, 10, 200, domain.SignalHold},
		{"flat", 1, 0.9, 10, 200, domain.SignalHold},
		{"small wallet raises bar", 10, 0.7, 5, 40, domain.SignalBuy},
		{"large wallet lowers bar", 6.5, 0.7, 10, 1000, domain.SignalStrongBuy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Recommend(tt.change, tt.confidence, tt.price, tt.balance))
		})
	}
}

func TestThresholdsFor(t *testing.T) {
	th := ThresholdsFor(40)
	assert.InDelta(t, 12.0, th.StrongBuy, 1e-9)
	assert.InDelta(t, 7.5, th.Buy, 1e-9)
	assert.InDelta(t, -7.5, th.Sell, 1e-9)
	assert.InDelta(t, -12.0, th.StrongSell, 1e-9)
}
