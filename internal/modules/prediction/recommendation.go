package prediction

import (
	"github.com/aristath/skinsentinel/internal/domain"
)

// Base change thresholds in percent before balance scaling.
const (
	baseStrongBuyThreshold  = 8.0
	baseBuyThreshold        = 5.0
	baseSellThreshold       = -5.0
	baseStrongSellThreshold = -8.0

	strongConfidence = 0.6
	normalConfidence = 0.5

	// affordableShare is the largest share of the balance a single buy may use.
	affordableShare = 0.3
)

// Thresholds are the change-percent cut-offs for each recommendation.
type Thresholds struct {
	StrongBuy  float64
	Buy        float64
	Sell       float64
	StrongSell float64
}

// ThresholdsFor scales the base thresholds by the balance factor.
func ThresholdsFor(balance float64) Thresholds {
	bf := domain.BalanceFactor(balance)
	return Thresholds{
		StrongBuy:  baseStrongBuyThreshold * bf,
		Buy:        baseBuyThreshold * bf,
		Sell:       baseSellThreshold * bf,
		StrongSell: baseStrongSellThreshold * bf,
	}
}

// Recommend turns a forecast change into a recommendation. Buys the balance
// cannot comfortably afford are downgraded one tier.
func Recommend(changePercent, confidence, price, balance float64) domain.Signal {
	t := ThresholdsFor(balance)
	affordable := price <= affordableShare*balance

	switch {
	case changePercent >= t.StrongBuy && confidence >= strongConfidence:
		if !affordable {
			return domain.SignalBuy
		}
		return domain.SignalStrongBuy
	case changePercent >= t.Buy && confidence >= normalConfidence:
		if !affordable {
			return domain.SignalHold
		}
		return domain.SignalBuy
	case changePercent <= t.StrongSell && confidence >= strongConfidence:
		return domain.SignalStrongSell
	case changePercent <= t.Sell && confidence >= normalConfidence:
		return domain.SignalSell
	default:
		return domain.SignalHold
	}
}
